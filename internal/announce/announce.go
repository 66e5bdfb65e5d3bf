// Package announce mirrors room lifecycle transitions to an external Redis
// channel so operational tooling (dashboards, room directories, audit tails)
// can observe the signaling plane without joining it.
//
// Publishing is strictly fire-and-forget: the signaling path never blocks on
// Redis and never fails because Redis is down. Events that cannot be queued
// are counted and dropped.
package announce

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/metrics"
)

// Event kinds mirrored to the announce channel.
const (
	KindRoomCreated   = "room_created"
	KindRoomReclaimed = "room_reclaimed"
	KindRoomClosed    = "room_closed"
	KindMemberJoined  = "member_joined"
	KindMemberLeft    = "member_left"
)

// Event is one room lifecycle transition.
type Event struct {
	Kind   string    `json:"kind"`
	RoomID string    `json:"roomId"`
	ConnID string    `json:"connId,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher accepts lifecycle events. Implementations must not block the
// caller.
type Publisher interface {
	Publish(ev Event)
	Close()
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close()        {}

// Client is the subset of the go-redis client the publisher uses.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

const (
	queueSize      = 256
	publishTimeout = 2 * time.Second
)

// Redis publishes events to a Redis channel from a single background worker.
type Redis struct {
	log     *slog.Logger
	rdb     Client
	channel string
	metrics *metrics.Metrics

	events chan Event
	done   chan struct{}
	stop   chan struct{}

	closeOnce sync.Once
}

// NewRedis starts the publish worker. The channel name must be non-empty.
func NewRedis(log *slog.Logger, rdb Client, channel string, m *metrics.Metrics) *Redis {
	r := &Redis{
		log:     log,
		rdb:     rdb,
		channel: channel,
		metrics: m,
		events:  make(chan Event, queueSize),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Publish queues ev for delivery. If the queue is full or the publisher is
// closed the event is dropped.
func (r *Redis) Publish(ev Event) {
	select {
	case <-r.stop:
		return
	default:
	}

	select {
	case r.events <- ev:
	default:
		r.metrics.Inc(metrics.EventAnnounceDropped)
	}
}

// Close stops the worker. Queued events that have not been sent yet are
// discarded.
func (r *Redis) Close() {
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.done
	})
}

func (r *Redis) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case ev := <-r.events:
			r.publish(ev)
		}
	}
}

func (r *Redis) publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.log.Warn("announce_marshal_failed", "kind", ev.Kind, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.metrics.Inc(metrics.EventAnnounceDropped)
		r.log.Warn("announce_publish_failed", "kind", ev.Kind, "room_id", ev.RoomID, "err", err)
		return
	}
	r.metrics.Inc(metrics.EventAnnouncePublished)
}
