// Package rooms holds the in-memory state for broadcast rooms: the room
// table, per-subscriber negotiation records, the pending candidate buffer,
// and the connection membership index.
//
// All state is owned by a Registry and mutated only through its operations,
// each of which runs as a single atomic step under one mutex. Payloads
// (SDP descriptions, ICE candidates) are stored as opaque JSON; validation
// happens at the transport boundary.
package rooms
