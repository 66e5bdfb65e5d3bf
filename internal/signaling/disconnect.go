package signaling

import (
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/announce"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/metrics"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/rooms"
)

// HandleDisconnect reconciles every piece of room state a vanished connection
// owned or appeared in. Publishing rooms close, subscriptions and their
// records are removed, and buffered candidates addressed to the connection
// are discarded. Calling it again for the same connection is a no-op.
func (e *Engine) HandleDisconnect(connID string) {
	res := e.registry.DropConnection(connID)

	if res.ClosedRoomID != "" {
		e.metrics.Inc(metrics.EventRoomsClosed)
		for _, member := range res.Members {
			e.sender.Send(member, newRoomClosedEvent(res.ClosedRoomID, reasonPublisherDisconnected))
		}
		e.publishAnnounce(announce.KindRoomClosed, res.ClosedRoomID, connID, reasonPublisherDisconnected)
		e.log.Info("room closed",
			"room_id", res.ClosedRoomID,
			"publisher_id", connID,
			"members", len(res.Members),
			"age", res.RoomAge)
	}

	if res.LeftRoomID != "" {
		e.announceDeparture(rooms.LeaveInfo{
			RoomID:      res.LeftRoomID,
			PublisherID: res.PublisherID,
			Records:     res.Records,
			RecordIdle:  res.RecordIdle,
		}, connID)
	}

	e.metrics.Add(metrics.EventCandidatesDropped, res.PendingDropped)
	if res.PendingDropped > 0 {
		e.log.Debug("pending candidates discarded", "conn_id", connID, "count", res.PendingDropped)
	}
}
