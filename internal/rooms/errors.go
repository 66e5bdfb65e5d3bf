package rooms

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrNotAMember is returned when a connection sends a room-scoped message
	// without holding the role that message requires (publisher for answers,
	// subscriber for offers).
	ErrNotAMember = errors.New("not a member of any room")

	ErrTooManyRooms = errors.New("too many rooms")
	ErrRoomFull     = errors.New("room full")
	// ErrPendingBufferFull is only possible when MaxPendingCandidates > 0;
	// the default (0) keeps the buffer unbounded so unroutable candidates are
	// never dropped.
	ErrPendingBufferFull = errors.New("pending candidate buffer full")
)
