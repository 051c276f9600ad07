package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kasuganosora/focusquest/cache"
)

// PubSubSink publishes notices on the hero's notify channel.
type PubSubSink struct {
	ps cache.PubSub
}

// NewPubSubSink creates a PubSubSink.
func NewPubSubSink(ps cache.PubSub) *PubSubSink {
	return &PubSubSink{ps: ps}
}

func (s *PubSubSink) Send(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode notice: %w", err)
	}
	return s.ps.Publish(ctx, Channel(n.HeroID), string(body))
}

func (s *PubSubSink) Close() error { return nil }
