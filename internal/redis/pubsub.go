package redisx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/classbook/internal/clock"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const msgSlotChanged = "slot_changed"

// SlotChanged announces that the capacity, staffing or enrollments of a slot
// changed for the days in [From, To]. Receivers drop cached values for them.
type SlotChanged struct {
	SlotID int64
	From   time.Time
	To     time.Time
	Reason string
}

type slotChangedMsg struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	SlotID int64  `json:"slot_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
	TsUnix int64  `json:"ts_unix"`
}

// InvalidationBus fans slot change notices out to every running instance so
// their caches converge without waiting for TTL expiry.
type InvalidationBus struct {
	rdb     *redis.Client
	channel string
	clock   clock.Clock
	logger  *slog.Logger
}

func NewInvalidationBus(rdb *redis.Client, clk clock.Clock, logger *slog.Logger) *InvalidationBus {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &InvalidationBus{
		rdb:     rdb,
		channel: ChannelSlotsChanged(),
		clock:   clk,
		logger:  logger,
	}
}

func (b *InvalidationBus) Publish(ctx context.Context, ev SlotChanged) error {
	const op = "redisx.InvalidationBus.Publish"

	if ev.To.Before(ev.From) {
		return fmt.Errorf("%s: range ends before it starts", op)
	}

	msg := slotChangedMsg{
		ID:     uuid.NewString(),
		Type:   msgSlotChanged,
		SlotID: ev.SlotID,
		From:   ev.From.Format(time.DateOnly),
		To:     ev.To.Format(time.DateOnly),
		Reason: ev.Reason,
		TsUnix: b.clock.Now().Unix(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Subscribe blocks delivering notices to handler until ctx is done.
// Malformed messages are logged and skipped.
func (b *InvalidationBus) Subscribe(ctx context.Context, handler func(ctx context.Context, ev SlotChanged)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so nothing published after
	// Subscribe returns control is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redisx.InvalidationBus.Subscribe: %w", err)
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}

			ev, err := decodeSlotChanged(m.Payload)
			if err != nil {
				b.logger.Warn("dropping invalidation message", "error", err)
				continue
			}

			handler(ctx, ev)
		}
	}
}

func decodeSlotChanged(payload string) (SlotChanged, error) {
	var msg slotChangedMsg
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return SlotChanged{}, err
	}

	if msg.Type != msgSlotChanged || msg.SlotID <= 0 {
		return SlotChanged{}, fmt.Errorf("unexpected message %q for slot %d", msg.Type, msg.SlotID)
	}

	from, err := time.Parse(time.DateOnly, msg.From)
	if err != nil {
		return SlotChanged{}, err
	}

	to, err := time.Parse(time.DateOnly, msg.To)
	if err != nil {
		return SlotChanged{}, err
	}

	return SlotChanged{SlotID: msg.SlotID, From: from, To: to, Reason: msg.Reason}, nil
}
