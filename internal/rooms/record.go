package rooms

import (
	"encoding/json"
	"sort"
	"time"
)

// record tracks one subscriber's negotiation with the room's publisher.
// Offer and answer are overwritten in place; candidates are append-only and
// keep arrival order, including candidates merged in from the pending buffer.
type record struct {
	ownerID    string
	offer      json.RawMessage
	answer     json.RawMessage
	candidates []json.RawMessage
	createdAt  time.Time
	updatedAt  time.Time
}

func (r *record) hasContent() bool {
	return r.offer != nil || r.answer != nil || len(r.candidates) > 0
}

// RecordSnapshot is the wire-facing view of a negotiation record. Offer and
// answer encode as null until set; candidates always encode as an array.
type RecordSnapshot struct {
	OwnerID    string            `json:"ownerId"`
	Offer      json.RawMessage   `json:"offer"`
	Answer     json.RawMessage   `json:"answer"`
	Candidates []json.RawMessage `json:"candidates"`
}

func (r *record) snapshot() RecordSnapshot {
	cands := make([]json.RawMessage, len(r.candidates))
	copy(cands, r.candidates)
	return RecordSnapshot{
		OwnerID:    r.ownerID,
		Offer:      r.offer,
		Answer:     r.answer,
		Candidates: cands,
	}
}

type room struct {
	id          string
	publisher   string
	subscribers map[string]struct{}
	records     map[string]*record
	createdAt   time.Time
}

// announceableRecordsLocked returns snapshots of the records that carry
// negotiation content, ordered by owner id so announcements are stable.
// Empty shells (created on join, nothing exchanged yet) exist in the store
// but are not announced.
func (rm *room) announceableRecordsLocked() []RecordSnapshot {
	out := make([]RecordSnapshot, 0, len(rm.records))
	for _, rec := range rm.records {
		if rec.hasContent() {
			out = append(out, rec.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out
}
