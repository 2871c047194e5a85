package token

import (
	"net/http/httptest"
	"testing"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{name: "bearer", target: "/ws", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "case insensitive scheme", target: "/ws", header: "bearer  xyz ", want: "xyz"},
		{name: "basic is ignored", target: "/ws?access_token=q", header: "Basic Zm9vOmJhcg==", want: ""},
		{name: "query fallback", target: "/ws?access_token=q1", want: "q1"},
		{name: "none", target: "/ws"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", tc.target, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if got := FromRequest(r); got != tc.want {
				t.Fatalf("FromRequest=%q want %q", got, tc.want)
			}
		})
	}
}
