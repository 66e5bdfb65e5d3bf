package rooms

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Limits bounds registry growth. Zero values leave the corresponding
// dimension unbounded, which matches the reference behavior: state for a
// silently partitioned connection is only reclaimed when its transport dies.
type Limits struct {
	MaxRooms              int
	MaxSubscribersPerRoom int
	MaxPendingCandidates  int
}

// membership records the rooms a connection currently occupies. A connection
// publishes at most one room and subscribes to at most one room; it may do
// both at once, including in the same room.
type membership struct {
	publisherOf  string
	subscriberOf string
}

func (m membership) empty() bool { return m.publisherOf == "" && m.subscriberOf == "" }

// Registry owns all room state. Every exported operation takes the one mutex
// for its whole resolve-then-mutate sequence, so callers observe each
// operation as a single atomic step.
type Registry struct {
	limits Limits
	now    func() time.Time

	mu      sync.Mutex
	rooms   map[string]*room
	members map[string]membership
	// pending holds candidates addressed to record owners that do not exist
	// yet, in arrival order. An entry is flushed into the owner's record the
	// moment that record is created, or dropped when the owner disconnects.
	pending      map[string][]json.RawMessage
	pendingTotal int
}

func NewRegistry(limits Limits, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		limits:  limits,
		now:     now,
		rooms:   make(map[string]*room),
		members: make(map[string]membership),
		pending: make(map[string][]json.RawMessage),
	}
}

// ClaimResult reports the outcome of CreateOrClaim. Existing is true when the
// room already existed and the claim reassigned (or re-confirmed) the
// publisher slot; Records then carries the announceable record set owed to
// the claimant.
type ClaimResult struct {
	Existing          bool
	PreviousPublisher string
	Records           []RecordSnapshot
}

// CreateOrClaim creates roomID with connID as publisher, or moves the
// publisher slot of an existing room to connID. Last claim wins; records and
// subscribers survive a reclaim untouched.
func (g *Registry) CreateOrClaim(roomID, connID string) (ClaimResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, existed := g.rooms[roomID]
	if !existed {
		if g.limits.MaxRooms > 0 && len(g.rooms) >= g.limits.MaxRooms {
			return ClaimResult{}, ErrTooManyRooms
		}
		rm = &room{
			id:          roomID,
			subscribers: make(map[string]struct{}),
			records:     make(map[string]*record),
			createdAt:   g.now(),
		}
		g.rooms[roomID] = rm
	}

	res := ClaimResult{}
	if existed {
		res.Existing = true
		res.PreviousPublisher = rm.publisher
		res.Records = rm.announceableRecordsLocked()
	}
	g.assignPublisherLocked(rm, connID)
	return res, nil
}

// assignPublisherLocked moves connID into rm's publisher slot. A connection
// publishes at most one room, so claiming a new room vacates any slot it held
// elsewhere, and the displaced publisher's index entry is cleared.
func (g *Registry) assignPublisherLocked(rm *room, connID string) {
	if rm.publisher == connID {
		return
	}
	if prev := rm.publisher; prev != "" {
		m := g.members[prev]
		if m.publisherOf == rm.id {
			m.publisherOf = ""
			g.setMemberLocked(prev, m)
		}
	}
	m := g.members[connID]
	if m.publisherOf != "" && m.publisherOf != rm.id {
		if old, ok := g.rooms[m.publisherOf]; ok {
			old.publisher = ""
		}
	}
	m.publisherOf = rm.id
	g.members[connID] = m
	rm.publisher = connID
}

func (g *Registry) setMemberLocked(connID string, m membership) {
	if m.empty() {
		delete(g.members, connID)
	} else {
		g.members[connID] = m
	}
}

// LeaveInfo describes a subscriber departure: the publisher to notify and the
// room's announceable records after the removal. RecordIdle is the time since
// the removed record last changed, zero when no record existed.
type LeaveInfo struct {
	RoomID      string
	PublisherID string
	Records     []RecordSnapshot
	RecordIdle  time.Duration
}

// JoinResult carries everything needed to announce a join: the publisher to
// notify and the room's announceable records including any the join created.
// Left is non-nil when the join moved the connection out of another room.
type JoinResult struct {
	PublisherID string
	Records     []RecordSnapshot
	Flushed     int
	Left        *LeaveInfo
}

// Join adds connID to roomID's subscriber set and ensures it has a record,
// merging in any pending candidates. Joining the same room again re-runs the
// same sequence; joining a different room moves the subscription there.
func (g *Registry) Join(roomID, connID string) (JoinResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}
	if _, already := rm.subscribers[connID]; !already {
		if g.limits.MaxSubscribersPerRoom > 0 && len(rm.subscribers) >= g.limits.MaxSubscribersPerRoom {
			return JoinResult{}, ErrRoomFull
		}
	}

	res := JoinResult{}
	m := g.members[connID]
	if m.subscriberOf != "" && m.subscriberOf != roomID {
		res.Left = g.leaveLocked(m.subscriberOf, connID)
		m = g.members[connID]
	}

	rm.subscribers[connID] = struct{}{}
	m.subscriberOf = roomID
	g.members[connID] = m

	_, flushed := g.ensureRecordLocked(rm, connID)
	res.PublisherID = rm.publisher
	res.Records = rm.announceableRecordsLocked()
	res.Flushed = flushed
	return res, nil
}

// leaveLocked removes connID from roomID's subscriber set and record store.
func (g *Registry) leaveLocked(roomID, connID string) *LeaveInfo {
	rm, ok := g.rooms[roomID]
	if !ok {
		return nil
	}
	info := &LeaveInfo{RoomID: roomID}
	if rec, ok := rm.records[connID]; ok {
		info.RecordIdle = g.now().Sub(rec.updatedAt)
	}
	delete(rm.subscribers, connID)
	delete(rm.records, connID)

	m := g.members[connID]
	if m.subscriberOf == roomID {
		m.subscriberOf = ""
		g.setMemberLocked(connID, m)
	}

	info.PublisherID = rm.publisher
	info.Records = rm.announceableRecordsLocked()
	return info
}

// ensureRecordLocked returns ownerID's record in rm, creating it when absent.
// Creation flushes any pending candidates for ownerID into the fresh record
// first, so merged sequences keep arrival order.
func (g *Registry) ensureRecordLocked(rm *room, ownerID string) (*record, int) {
	if rec, ok := rm.records[ownerID]; ok {
		return rec, 0
	}
	now := g.now()
	rec := &record{ownerID: ownerID, createdAt: now, updatedAt: now}
	if buf := g.pending[ownerID]; len(buf) > 0 {
		rec.candidates = append(rec.candidates, buf...)
		g.pendingTotal -= len(buf)
		delete(g.pending, ownerID)
	}
	rm.records[ownerID] = rec
	return rec, len(rec.candidates)
}

// OfferResult carries the updated record and the publisher owed the
// announcement.
type OfferResult struct {
	RoomID      string
	PublisherID string
	Record      RecordSnapshot
	Flushed     int
}

// UpsertOffer stores connID's offer on its record in the room it subscribes
// to, creating the record when absent. Candidates and any answer already on
// the record are preserved; only the offer is overwritten.
func (g *Registry) UpsertOffer(connID string, offer json.RawMessage) (OfferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := g.members[connID]
	if m.subscriberOf == "" {
		return OfferResult{}, ErrNotAMember
	}
	rm, ok := g.rooms[m.subscriberOf]
	if !ok {
		return OfferResult{}, ErrNotAMember
	}

	rec, flushed := g.ensureRecordLocked(rm, connID)
	rec.offer = offer
	rec.updatedAt = g.now()
	return OfferResult{
		RoomID:      rm.id,
		PublisherID: rm.publisher,
		Record:      rec.snapshot(),
		Flushed:     flushed,
	}, nil
}

// AnswerResult carries the answered record for delivery to its owner plus the
// candidate sequence accumulated so far for the publisher's acknowledgment.
type AnswerResult struct {
	RoomID     string
	Record     RecordSnapshot
	Candidates []json.RawMessage
}

// SetAnswer stores the publisher's answer on ownerID's record in the room
// connID publishes. The record must already exist; answering an unknown
// subscriber is an error, never an implicit record creation.
func (g *Registry) SetAnswer(connID, ownerID string, answer json.RawMessage) (AnswerResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := g.members[connID]
	if m.publisherOf == "" {
		return AnswerResult{}, ErrNotAMember
	}
	rm, ok := g.rooms[m.publisherOf]
	if !ok {
		return AnswerResult{}, ErrNotAMember
	}
	rec, ok := rm.records[ownerID]
	if !ok {
		return AnswerResult{}, ErrSubscriberNotFound
	}

	rec.answer = answer
	rec.updatedAt = g.now()
	snap := rec.snapshot()
	return AnswerResult{RoomID: rm.id, Record: snap, Candidates: snap.Candidates}, nil
}

// CandidateRoute describes where AppendCandidate put a candidate: parked in
// the pending buffer when no shared room links sender and owner, otherwise
// appended to the owner's record with the counterpart connection to forward
// to. TargetID is empty when the room's publisher slot is vacant.
type CandidateRoute struct {
	Buffered bool
	RoomID   string
	OwnerID  string
	TargetID string
	Flushed  int
}

// AppendCandidate routes one ICE candidate from senderID. The record owner is
// normalized to the subscriber side of the resolved pair, so records stay
// keyed by subscriber id even when ownerID named the publisher.
func (g *Registry) AppendCandidate(senderID, ownerID string, cand json.RawMessage) (CandidateRoute, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, recOwner, target := g.resolveSharedRoomLocked(senderID, ownerID)
	if rm == nil {
		if g.limits.MaxPendingCandidates > 0 && g.pendingTotal >= g.limits.MaxPendingCandidates {
			return CandidateRoute{}, ErrPendingBufferFull
		}
		g.pending[ownerID] = append(g.pending[ownerID], cand)
		g.pendingTotal++
		return CandidateRoute{Buffered: true, OwnerID: ownerID}, nil
	}

	rec, flushed := g.ensureRecordLocked(rm, recOwner)
	rec.candidates = append(rec.candidates, cand)
	rec.updatedAt = g.now()
	return CandidateRoute{RoomID: rm.id, OwnerID: recOwner, TargetID: target, Flushed: flushed}, nil
}

// resolveSharedRoomLocked finds the room where senderID and ownerID face each
// other as publisher and subscriber, in either order. It returns the room,
// the subscriber side of the pair (the record owner), and the counterpart a
// candidate should be forwarded to.
func (g *Registry) resolveSharedRoomLocked(senderID, ownerID string) (*room, string, string) {
	if senderID == ownerID {
		// A subscriber trickling its own candidates; the counterpart is the
		// room's publisher.
		if roomID := g.members[senderID].subscriberOf; roomID != "" {
			if rm, ok := g.rooms[roomID]; ok {
				return rm, senderID, rm.publisher
			}
		}
		return nil, "", ""
	}
	if roomID := g.members[senderID].publisherOf; roomID != "" {
		if rm, ok := g.rooms[roomID]; ok {
			if _, in := rm.subscribers[ownerID]; in {
				return rm, ownerID, ownerID
			}
		}
	}
	if roomID := g.members[ownerID].publisherOf; roomID != "" {
		if rm, ok := g.rooms[roomID]; ok {
			if _, in := rm.subscribers[senderID]; in {
				return rm, senderID, ownerID
			}
		}
	}
	return nil, "", ""
}

// ResolveAsPublisher returns the room connID currently publishes.
func (g *Registry) ResolveAsPublisher(connID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.members[connID]
	return m.publisherOf, m.publisherOf != ""
}

// ResolveAsSubscriber returns the room connID currently subscribes to.
func (g *Registry) ResolveAsSubscriber(connID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.members[connID]
	return m.subscriberOf, m.subscriberOf != ""
}

// ResolveSharedRoom reports the room in which senderID and ownerID face each
// other as publisher and subscriber, in either order.
func (g *Registry) ResolveSharedRoom(senderID, ownerID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rm, _, _ := g.resolveSharedRoomLocked(senderID, ownerID)
	if rm == nil {
		return "", false
	}
	return rm.id, true
}

// Destroy removes roomID with all its records and membership references.
// Destroying an absent room is a no-op.
func (g *Registry) Destroy(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.destroyLocked(roomID)
}

// destroyLocked tears a room down and returns the subscriber ids that were
// members at teardown, sorted. No membership entry references the room after
// it returns.
func (g *Registry) destroyLocked(roomID string) []string {
	rm, ok := g.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(rm.subscribers))
	for sub := range rm.subscribers {
		members = append(members, sub)
		m := g.members[sub]
		if m.subscriberOf == roomID {
			m.subscriberOf = ""
			g.setMemberLocked(sub, m)
		}
	}
	sort.Strings(members)
	if pub := rm.publisher; pub != "" {
		m := g.members[pub]
		if m.publisherOf == roomID {
			m.publisherOf = ""
			g.setMemberLocked(pub, m)
		}
	}
	delete(g.rooms, roomID)
	return members
}

// DropResult reports the reconciliation performed for a dead connection.
// ClosedRoomID and Members are set when it published a room: the room is gone
// and every listed member is owed a room-closed notice. LeftRoomID,
// PublisherID and Records are set when it subscribed somewhere: the publisher
// is owed the shrunk record set.
type DropResult struct {
	ClosedRoomID string
	Members      []string
	RoomAge      time.Duration

	LeftRoomID  string
	PublisherID string
	Records     []RecordSnapshot
	RecordIdle  time.Duration

	PendingDropped int
}

// DropConnection removes every trace of connID: the room it published, its
// subscription elsewhere, its membership entry, and its pending buffer
// entry. Calling it again for the same connection finds nothing to do.
func (g *Registry) DropConnection(connID string) DropResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := DropResult{}
	m := g.members[connID]
	if roomID := m.publisherOf; roomID != "" {
		if rm, ok := g.rooms[roomID]; ok {
			res.ClosedRoomID = roomID
			res.RoomAge = g.now().Sub(rm.createdAt)
			members := g.destroyLocked(roomID)
			// The dead connection may appear in its own room's subscriber
			// set; it needs no notice.
			kept := members[:0]
			for _, id := range members {
				if id != connID {
					kept = append(kept, id)
				}
			}
			res.Members = kept
		}
	}

	// Destroying the published room may already have cleared the subscriber
	// side of this entry; re-read before handling it.
	m = g.members[connID]
	if roomID := m.subscriberOf; roomID != "" {
		if left := g.leaveLocked(roomID, connID); left != nil {
			res.LeftRoomID = left.RoomID
			res.PublisherID = left.PublisherID
			res.Records = left.Records
			res.RecordIdle = left.RecordIdle
		}
	}

	delete(g.members, connID)
	if buf, ok := g.pending[connID]; ok {
		res.PendingDropped = len(buf)
		g.pendingTotal -= len(buf)
		delete(g.pending, connID)
	}
	return res
}

// Stats is a point-in-time occupancy snapshot.
type Stats struct {
	Rooms             int `json:"rooms"`
	Subscribers       int `json:"subscribers"`
	Records           int `json:"records"`
	PendingOwners     int `json:"pendingOwners"`
	PendingCandidates int `json:"pendingCandidates"`
}

func (g *Registry) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := Stats{
		Rooms:             len(g.rooms),
		PendingOwners:     len(g.pending),
		PendingCandidates: g.pendingTotal,
	}
	for _, rm := range g.rooms {
		st.Subscribers += len(rm.subscribers)
		st.Records += len(rm.records)
	}
	return st
}
