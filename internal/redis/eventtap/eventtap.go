// Package eventtap mirrors hub events onto a Redis pub/sub channel so that
// external tools can watch joins, leaves and relayed messages. Nothing is
// stored and nothing is read back.
package eventtap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"relayhub/internal/ws"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// Message is the JSON payload published for every hub event.
type Message struct {
	ID string `json:"id"`
	ws.HubEvent
}

// Tap implements ws.Observer.
type Tap struct {
	rdc     *redis.Client
	channel string
	events  chan ws.HubEvent
	newID   func() string
}

func New(rdc *redis.Client, channel string, buffer int) *Tap {
	if buffer <= 0 {
		buffer = 1
	}
	return &Tap{
		rdc:     rdc,
		channel: channel,
		events:  make(chan ws.HubEvent, buffer),
		newID:   uuid.NewString,
	}
}

// Observe queues ev for publishing; it drops ev when the queue is full.
func (t *Tap) Observe(ev ws.HubEvent) {
	select {
	case t.events <- ev:
	default:
		zap.L().Debug("eventtap.dropped", zap.String("kind", string(ev.Kind)))
	}
}

// Run publishes queued events until ctx is cancelled.
func (t *Tap) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.events:
			if err := t.publish(ctx, ev); err != nil {
				zap.L().Warn("eventtap.publish", zap.Error(err))
			}
		}
	}
}

func (t *Tap) publish(ctx context.Context, ev ws.HubEvent) error {
	payload, err := json.Marshal(Message{ID: t.newID(), HubEvent: ev})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return t.rdc.Publish(ctx, t.channel, string(payload)).Err()
}
