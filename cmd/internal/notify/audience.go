package notify

import (
	"context"
	"fmt"
	"strings"
)

// AudiencePolicy decides who hears about a user's presence change.
type AudiencePolicy interface {
	Audience(ctx context.Context, userID int64, online bool) ([]int64, error)
}

// AudienceFunc adapts a function to AudiencePolicy.
type AudienceFunc func(ctx context.Context, userID int64, online bool) ([]int64, error)

func (f AudienceFunc) Audience(ctx context.Context, userID int64, online bool) ([]int64, error) {
	return f(ctx, userID, online)
}

// NoAudience keeps presence changes server-side.
type NoAudience struct{}

func (NoAudience) Audience(context.Context, int64, bool) ([]int64, error) { return nil, nil }

// SelfAudience notifies the user's own sessions. Only online edges reach
// anyone: after an offline edge no session is left.
type SelfAudience struct{}

func (SelfAudience) Audience(_ context.Context, userID int64, _ bool) ([]int64, error) {
	return []int64{userID}, nil
}

// PartnerLister returns the users someone has exchanged messages with.
type PartnerLister interface {
	Partners(ctx context.Context, userID int64) ([]int64, error)
}

// PeersAudience notifies everyone the user has a conversation with.
type PeersAudience struct {
	Partners PartnerLister
}

func (p PeersAudience) Audience(ctx context.Context, userID int64, _ bool) ([]int64, error) {
	if p.Partners == nil {
		return nil, nil
	}
	return p.Partners.Partners(ctx, userID)
}

// ParseAudience maps a config value to a policy. partners may be nil unless
// name is "peers".
func ParseAudience(name string, partners PartnerLister) (AudiencePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "peers":
		if partners == nil {
			return nil, fmt.Errorf("presence audience %q needs a partner lister", name)
		}
		return PeersAudience{Partners: partners}, nil
	case "self":
		return SelfAudience{}, nil
	case "none":
		return NoAudience{}, nil
	default:
		return nil, fmt.Errorf("unknown presence audience %q", name)
	}
}
