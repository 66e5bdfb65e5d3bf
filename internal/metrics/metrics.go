package metrics

import "sync"

// Counter names for signaling events. Everything is exposed through a single
// Prometheus counter family with an `event` label.
const (
	EventConnectionsOpened = "connections_opened"
	EventConnectionsClosed = "connections_closed"

	EventRoomsCreated   = "rooms_created"
	EventRoomsReclaimed = "rooms_reclaimed"
	EventRoomsClosed    = "rooms_closed"
	EventRoomsRejected  = "rooms_rejected"

	EventJoins         = "joins"
	EventJoinsRejected = "joins_rejected"

	EventOffers          = "offers"
	EventOffersRejected  = "offers_rejected"
	EventAnswers         = "answers"
	EventAnswersRejected = "answers_rejected"

	EventCandidatesRelayed  = "candidates_relayed"
	EventCandidatesBuffered = "candidates_buffered"
	EventCandidatesFlushed  = "candidates_flushed"
	EventCandidatesDropped  = "candidates_dropped"

	EventProtocolErrors = "protocol_errors"
	EventRateLimited    = "rate_limited"
	EventSlowConsumers  = "slow_consumers"

	EventAnnouncePublished = "announce_published"
	EventAnnounceDropped   = "announce_dropped"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The signaling server is expected to plug into a real metrics backend
// eventually; this type keeps the relay logic testable while still giving
// Prometheus something to scrape.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

// Add increments name by n. Non-positive n is a no-op.
func (m *Metrics) Add(name string, n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.m[name] += uint64(n)
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
