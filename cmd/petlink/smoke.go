package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	v1 "petlink/contracts/realtime/v1"
)

const (
	smokeSubprotocol = "petlink.realtime.v1"
	maxReadBytes     = 1 << 20
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run a websocket round trip against a running server",
	Long: `Connect two users over websocket and check that typing indicators and
messages reach the receiver.

Tokens are issued with PETLINK_JWT_SECRET unless --dev is set, in which case
the X-User-ID header is sent (server must run with PETLINK_AUTH_REQUIRED=false).

Examples:
  petlink smoke --url ws://127.0.0.1:8080/ws --dev
  petlink smoke --url wss://petlink.example.com/ws --sender 1 --receiver 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := smokeOptions{}
		opts.URL, _ = cmd.Flags().GetString("url")
		opts.Origin, _ = cmd.Flags().GetString("origin")
		opts.SenderID, _ = cmd.Flags().GetInt64("sender")
		opts.ReceiverID, _ = cmd.Flags().GetInt64("receiver")
		opts.Text, _ = cmd.Flags().GetString("text")
		opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
		opts.Dev, _ = cmd.Flags().GetBool("dev")

		res, err := runSmoke(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: sender_session=%s receiver_session=%s message_id=%d\n",
			res.SenderSession, res.ReceiverSession, res.MessageID)
		return nil
	},
}

func init() {
	smokeCmd.Flags().String("url", "ws://127.0.0.1:8080/ws", "websocket URL")
	smokeCmd.Flags().String("origin", "http://localhost", "Origin header to send")
	smokeCmd.Flags().Int64("sender", 1, "sending user id")
	smokeCmd.Flags().Int64("receiver", 2, "receiving user id")
	smokeCmd.Flags().String("text", "hello from petlink smoke", "message content")
	smokeCmd.Flags().Duration("timeout", 7*time.Second, "per-step timeout")
	smokeCmd.Flags().Bool("dev", false, "authenticate with X-User-ID instead of a bearer token")
}

type smokeOptions struct {
	URL        string
	Origin     string
	SenderID   int64
	ReceiverID int64
	Text       string
	Timeout    time.Duration
	Dev        bool
}

type smokeResult struct {
	SenderSession   string
	ReceiverSession string
	MessageID       int64
}

func runSmoke(parent context.Context, opts smokeOptions) (smokeResult, error) {
	if parent == nil {
		parent = context.Background()
	}
	if err := validateWSURL(opts.URL); err != nil {
		return smokeResult{}, fmt.Errorf("invalid --url: %w", err)
	}
	if err := validateOrigin(opts.Origin); err != nil {
		return smokeResult{}, fmt.Errorf("invalid --origin: %w", err)
	}
	if opts.SenderID <= 0 || opts.ReceiverID <= 0 || opts.SenderID == opts.ReceiverID {
		return smokeResult{}, errors.New("--sender and --receiver must be distinct positive ids")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 7 * time.Second
	}

	receiver, err := connectSmoke(parent, "receiver", opts.ReceiverID, opts)
	if err != nil {
		return smokeResult{}, err
	}
	defer receiver.close()

	sender, err := connectSmoke(parent, "sender", opts.SenderID, opts)
	if err != nil {
		return smokeResult{}, err
	}
	defer sender.close()

	skip := map[string]struct{}{v1.TypePresenceChange: {}}

	typing := newSmokeEnvelope(v1.TypeTyping, "smoke-typing", mustJSON(v1.TypingPayload{ReceiverID: opts.ReceiverID, IsTyping: true}))
	if err := sender.write(parent, typing, opts.Timeout); err != nil {
		return smokeResult{}, err
	}
	ti, err := receiver.readUntilType(parent, v1.TypeTypingIndicator, opts.Timeout, skip)
	if err != nil {
		return smokeResult{}, err
	}
	var tp v1.TypingIndicatorPayload
	if err := json.Unmarshal(ti.Payload, &tp); err != nil || tp.SenderID != opts.SenderID || !tp.IsTyping {
		return smokeResult{}, fmt.Errorf("typing_indicator mismatch: %s", ti.Payload)
	}

	clientMsgID := "cmsg-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	send := newSmokeEnvelope(v1.TypeMessageSend, clientMsgID, mustJSON(v1.MessageSendPayload{
		ReceiverID:  opts.ReceiverID,
		ClientMsgID: clientMsgID,
		Content:     opts.Text,
	}))
	if err := sender.write(parent, send, opts.Timeout); err != nil {
		return smokeResult{}, err
	}
	ackEnv, err := sender.readUntilType(parent, v1.TypeMessageAck, opts.Timeout, skip)
	if err != nil {
		return smokeResult{}, err
	}
	var ack v1.MessageAckPayload
	if err := json.Unmarshal(ackEnv.Payload, &ack); err != nil {
		return smokeResult{}, fmt.Errorf("decode message_ack: %w", err)
	}
	if ack.ClientMsgID != clientMsgID || ack.MessageID <= 0 {
		return smokeResult{}, fmt.Errorf("message_ack mismatch: %s", ackEnv.Payload)
	}

	nmEnv, err := receiver.readUntilType(parent, v1.TypeNewMessage, opts.Timeout, skip)
	if err != nil {
		return smokeResult{}, err
	}
	var nm v1.NewMessagePayload
	if err := json.Unmarshal(nmEnv.Payload, &nm); err != nil {
		return smokeResult{}, fmt.Errorf("decode new_message: %w", err)
	}
	if nm.MessageID != ack.MessageID || nm.SenderID != opts.SenderID || nm.Content != strings.TrimSpace(opts.Text) {
		return smokeResult{}, fmt.Errorf("new_message mismatch: %s", nmEnv.Payload)
	}

	return smokeResult{
		SenderSession:   sender.sessionID,
		ReceiverSession: receiver.sessionID,
		MessageID:       ack.MessageID,
	}, nil
}

type smokeClient struct {
	name      string
	conn      *websocket.Conn
	sessionID string

	inbox chan v1.Envelope
	errCh chan error
}

func connectSmoke(parent context.Context, name string, userID int64, opts smokeOptions) (*smokeClient, error) {
	h := http.Header{}
	if strings.TrimSpace(opts.Origin) != "" {
		h.Set("Origin", opts.Origin)
	}
	if opts.Dev {
		h.Set("X-User-ID", strconv.FormatInt(userID, 10))
	} else {
		raw, err := issueToken(userID, "", opts.Timeout+time.Minute)
		if err != nil {
			return nil, err
		}
		h.Set("Authorization", "Bearer "+raw)
	}

	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, opts.URL, &websocket.DialOptions{
		Subprotocols: []string{smokeSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", name, err)
	}
	if got := conn.Subprotocol(); got != smokeSubprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol")
		return nil, fmt.Errorf("subprotocol mismatch: got=%q want=%q", got, smokeSubprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	hello := newSmokeEnvelope(v1.TypeHello, name+"-hello", mustJSON(v1.HelloPayload{}))
	if err := c.write(parent, hello, opts.Timeout); err != nil {
		c.close()
		return nil, err
	}
	ackEnv, err := c.readUntilType(parent, v1.TypeHelloAck, opts.Timeout, map[string]struct{}{v1.TypePresenceChange: {}})
	if err != nil {
		c.close()
		return nil, err
	}
	var ack v1.HelloAckPayload
	if err := json.Unmarshal(ackEnv.Payload, &ack); err != nil {
		c.close()
		return nil, fmt.Errorf("decode hello_ack (%s): %w", name, err)
	}
	if strings.TrimSpace(ack.SessionID) == "" || ack.UserID != userID {
		c.close()
		return nil, fmt.Errorf("hello_ack mismatch (%s): %s", name, ackEnv.Payload)
	}
	c.sessionID = ack.SessionID
	return c, nil
}

func (c *smokeClient) startReadLoop() {
	report := func(err error) {
		select {
		case c.errCh <- err:
		default:
		}
	}

	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				report(err)
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				report(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				report(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				report(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) readUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) (v1.Envelope, error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return v1.Envelope{}, fmt.Errorf("timeout waiting for %q (%s): %w", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			return v1.Envelope{}, fmt.Errorf("connection error while waiting for %q (%s): %w", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				return v1.Envelope{}, fmt.Errorf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env, nil
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				return v1.Envelope{}, fmt.Errorf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if _, ok := skipTypes[env.Type]; ok {
				continue
			}
			return v1.Envelope{}, fmt.Errorf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func (c *smokeClient) write(parent context.Context, env v1.Envelope, stepTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("write %s (%s): %w", env.Type, c.name, err)
	}
	return nil
}

func (c *smokeClient) close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func newSmokeEnvelope(typ, id string, payload json.RawMessage) v1.Envelope {
	return v1.Envelope{V: v1.Version, Type: typ, ID: id, TS: time.Now().UTC(), Payload: payload}
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

