package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/r3labs/sse/v2"

	"snaphound/internal/domain"
	"snaphound/internal/logging"
)

// envelope is the data frame of a pushed event
type envelope struct {
	Epoch   *uint64         `json:"epoch"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeMessage turns one SSE event into a push message. A data frame that is
// an {"epoch", "payload"} object is unwrapped; anything else is the payload.
func DecodeMessage(name string, data []byte) domain.PushMessage {
	msg := domain.PushMessage{Name: name, Payload: data}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return msg
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Payload == nil {
		return msg
	}
	msg.Payload = env.Payload
	if env.Epoch != nil {
		msg.Epoch = *env.Epoch
	}
	return msg
}

// Subscribe streams host events to handler until ctx is done or the stream
// ends. It returns nil when the host closed the stream cleanly.
func (c *Client) Subscribe(ctx context.Context, handler func(domain.PushMessage)) error {
	client := sse.NewClient(c.endpoint(eventsEndpoint))
	client.Headers["User-Agent"] = UserAgent
	client.Headers[SessionHeader] = c.session
	// A couple of quick reconnects here; longer outages are retried by the caller
	client.ReconnectStrategy = backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(250*time.Millisecond), 2), ctx)
	client.ReconnectNotify = func(err error, wait time.Duration) {
		c.observer.ObserveSubscriptionFailure()
		logging.Warn("Host: event stream interrupted, reconnecting in %s: %v", wait, err)
	}
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("could not connect to event stream: %s", resp.Status)
		}
		logging.Info("Host: event stream connected (session %s)", c.session)
		if c.opts.OnConnect != nil {
			c.opts.OnConnect()
		}
		return nil
	}

	err := client.SubscribeWithContext(ctx, c.session, func(ev *sse.Event) {
		name := string(ev.Event)
		if name == "" {
			name = "message"
		}
		handler(DecodeMessage(name, ev.Data))
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("event stream: %w", err)
	}
	return nil
}
