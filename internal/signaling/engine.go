package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/announce"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/metrics"
	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/rooms"
)

// Rejection reasons visible to clients in roomClosed events and negative
// acks.
const (
	reasonPublisherDisconnected = "publisher disconnected"
	reasonRoomNotFound          = "room not found"
	reasonRoomFull              = "room full"
	reasonTooManyRooms          = "too many rooms"
	reasonMissingRoomID         = "missing room id"
	reasonNotAMember            = "not a member of any room"
	reasonSubscriberNotFound    = "subscriber not found"
)

// Sender delivers one event to one connection. Send reports whether the
// connection was still registered; delivery itself is asynchronous and
// best-effort.
type Sender interface {
	Send(connID string, event any) bool
}

// Engine turns inbound signaling messages into room mutations and outbound
// events. All state lives in the rooms registry; the engine itself is
// stateless and safe for concurrent use by one goroutine per connection.
type Engine struct {
	log      *slog.Logger
	registry *rooms.Registry
	metrics  *metrics.Metrics
	sender   Sender
	announce announce.Publisher
	now      func() time.Time
}

// NewEngine wires the engine to its collaborators. A nil announcer disables
// lifecycle mirroring.
func NewEngine(log *slog.Logger, registry *rooms.Registry, m *metrics.Metrics, sender Sender, pub announce.Publisher) *Engine {
	if pub == nil {
		pub = announce.Nop{}
	}
	return &Engine{
		log:      log,
		registry: registry,
		metrics:  m,
		sender:   sender,
		announce: pub,
		now:      time.Now,
	}
}

// Registry exposes the underlying room state for stats endpoints.
func (e *Engine) Registry() *rooms.Registry {
	return e.registry
}

// HandleConnect greets a new connection with the id it will appear as in
// ownerId and senderId fields.
func (e *Engine) HandleConnect(connID string) {
	e.sender.Send(connID, newWelcomeEvent(connID))
}

// HandleMessage dispatches one inbound frame. A non-nil return is a protocol
// error and the caller should drop the connection; semantic failures are
// answered on the wire and return nil.
func (e *Engine) HandleMessage(connID string, data []byte) error {
	msg, err := parseClientMessage(data)
	if err != nil && !isFieldError(err) {
		return err
	}

	switch msg.Type {
	case messageTypeCreate:
		e.handleCreate(connID, msg, err)
	case messageTypeJoin:
		e.handleJoin(connID, msg, err)
	case messageTypeNewOffer:
		e.handleNewOffer(connID, msg, err)
	case messageTypeNewAnswer:
		e.handleNewAnswer(connID, msg, err)
	case messageTypeICECandidate:
		e.handleCandidate(connID, msg, err)
	default:
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}
	return nil
}

func (e *Engine) handleCreate(connID string, msg clientMessage, fieldErr error) {
	if fieldErr != nil {
		e.rejectCreate(connID, msg, "", fieldErr)
		return
	}

	res, err := e.registry.CreateOrClaim(msg.RoomID, connID)
	if err != nil {
		e.rejectCreate(connID, msg, msg.RoomID, err)
		return
	}

	switch {
	case !res.Existing:
		e.metrics.Inc(metrics.EventRoomsCreated)
		e.log.Info("room created", "room_id", msg.RoomID, "publisher_id", connID)
		e.publishAnnounce(announce.KindRoomCreated, msg.RoomID, connID, "")
	case res.PreviousPublisher == connID:
		e.metrics.Inc(metrics.EventRoomsReclaimed)
		e.log.Debug("room re-created by its publisher", "room_id", msg.RoomID, "publisher_id", connID)
		e.publishAnnounce(announce.KindRoomReclaimed, msg.RoomID, connID, "")
	default:
		// Any connection that names an existing room becomes its publisher;
		// records and subscribers survive the handover.
		e.metrics.Inc(metrics.EventRoomsReclaimed)
		e.log.Warn("room publisher reassigned",
			"room_id", msg.RoomID,
			"publisher_id", connID,
			"previous_publisher", res.PreviousPublisher)
		e.publishAnnounce(announce.KindRoomReclaimed, msg.RoomID, connID, "")
	}

	if res.Existing {
		e.sender.Send(connID, newRecordsEvent(messageTypeAvailableRecords, msg.RoomID, res.Records))
	}
	e.ackOK(connID, msg, msg.RoomID, "")
}

func (e *Engine) rejectCreate(connID string, msg clientMessage, roomID string, err error) {
	reason := rejectionReason(err)
	e.metrics.Inc(metrics.EventRoomsRejected)
	e.log.Warn("create rejected", "conn_id", connID, "room_id", roomID, "reason", reason)
	e.sender.Send(connID, newRoomClosedEvent(roomID, reason))
	e.ackIgnored(connID, msg, reason)
}

func (e *Engine) handleJoin(connID string, msg clientMessage, fieldErr error) {
	if fieldErr != nil {
		e.rejectJoin(connID, msg, "", fieldErr)
		return
	}

	res, err := e.registry.Join(msg.RoomID, connID)
	if err != nil {
		e.rejectJoin(connID, msg, msg.RoomID, err)
		return
	}

	e.metrics.Inc(metrics.EventJoins)
	e.metrics.Add(metrics.EventCandidatesFlushed, res.Flushed)
	e.log.Info("subscriber joined",
		"room_id", msg.RoomID,
		"conn_id", connID,
		"flushed_candidates", res.Flushed)

	if res.Left != nil {
		e.announceDeparture(*res.Left, connID)
	}

	e.sender.Send(res.PublisherID, newRecordsEvent(messageTypeAvailableRecords, msg.RoomID, res.Records))
	e.publishAnnounce(announce.KindMemberJoined, msg.RoomID, connID, "")
	e.ackOK(connID, msg, msg.RoomID, "")
}

func (e *Engine) rejectJoin(connID string, msg clientMessage, roomID string, err error) {
	reason := rejectionReason(err)
	e.metrics.Inc(metrics.EventJoinsRejected)
	e.log.Info("join rejected", "conn_id", connID, "room_id", roomID, "reason", reason)
	e.sender.Send(connID, newRoomClosedEvent(roomID, reason))
	e.ackIgnored(connID, msg, reason)
}

func (e *Engine) handleNewOffer(connID string, msg clientMessage, fieldErr error) {
	if fieldErr != nil {
		e.rejectOffer(connID, msg, fieldErr)
		return
	}

	payload, err := json.Marshal(msg.Offer)
	if err != nil {
		e.rejectOffer(connID, msg, err)
		return
	}

	res, err := e.registry.UpsertOffer(connID, payload)
	if err != nil {
		e.rejectOffer(connID, msg, err)
		return
	}

	e.metrics.Inc(metrics.EventOffers)
	e.metrics.Add(metrics.EventCandidatesFlushed, res.Flushed)
	e.log.Info("offer stored",
		"room_id", res.RoomID,
		"owner_id", connID,
		"flushed_candidates", res.Flushed)

	e.sender.Send(res.PublisherID, newRecordsEvent(messageTypeNewRecordAwaiting, res.RoomID, []rooms.RecordSnapshot{res.Record}))
	e.ackOK(connID, msg, res.RoomID, connID)
}

func (e *Engine) rejectOffer(connID string, msg clientMessage, err error) {
	reason := rejectionReason(err)
	e.metrics.Inc(metrics.EventOffersRejected)
	e.log.Info("offer ignored", "conn_id", connID, "reason", reason)
	e.ackIgnored(connID, msg, reason)
}

func (e *Engine) handleNewAnswer(connID string, msg clientMessage, fieldErr error) {
	if fieldErr != nil {
		e.rejectAnswer(connID, msg, fieldErr)
		return
	}

	payload, err := json.Marshal(msg.Answer)
	if err != nil {
		e.rejectAnswer(connID, msg, err)
		return
	}

	res, err := e.registry.SetAnswer(connID, msg.OwnerID, payload)
	if err != nil {
		e.rejectAnswer(connID, msg, err)
		return
	}

	e.metrics.Inc(metrics.EventAnswers)
	e.log.Info("answer delivered",
		"room_id", res.RoomID,
		"owner_id", msg.OwnerID,
		"publisher_id", connID,
		"candidates", len(res.Candidates))

	e.sender.Send(msg.OwnerID, newAnswerDeliveredEvent(res.RoomID, res.Record))
	if msg.Ack != nil {
		e.sender.Send(connID, newAckCandidatesEvent(*msg.Ack, msg.OwnerID, res.Candidates))
	}
}

func (e *Engine) rejectAnswer(connID string, msg clientMessage, err error) {
	reason := rejectionReason(err)
	e.metrics.Inc(metrics.EventAnswersRejected)
	e.log.Info("answer ignored", "conn_id", connID, "owner_id", msg.OwnerID, "reason", reason)
	e.ackIgnored(connID, msg, reason)
}

// handleCandidate relays best-effort: nobody waits on a response, so
// unusable candidates are logged and dropped without closing the connection.
func (e *Engine) handleCandidate(connID string, msg clientMessage, fieldErr error) {
	if fieldErr != nil {
		e.metrics.Inc(metrics.EventProtocolErrors)
		e.log.Debug("candidate dropped", "conn_id", connID, "err", fieldErr)
		return
	}

	payload, err := json.Marshal(msg.Candidate)
	if err != nil {
		e.metrics.Inc(metrics.EventProtocolErrors)
		e.log.Debug("candidate dropped", "conn_id", connID, "err", err)
		return
	}

	res, err := e.registry.AppendCandidate(connID, msg.OwnerID, payload)
	if err != nil {
		e.metrics.Inc(metrics.EventCandidatesDropped)
		e.log.Warn("candidate dropped", "conn_id", connID, "owner_id", msg.OwnerID, "err", err)
		return
	}

	if res.Buffered {
		e.metrics.Inc(metrics.EventCandidatesBuffered)
		e.log.Debug("candidate buffered", "owner_id", msg.OwnerID, "sender_id", connID)
		return
	}

	e.metrics.Inc(metrics.EventCandidatesRelayed)
	e.metrics.Add(metrics.EventCandidatesFlushed, res.Flushed)
	e.sender.Send(res.TargetID, newCandidateRelayedEvent(connID, payload))
	e.log.Debug("candidate relayed",
		"room_id", res.RoomID,
		"owner_id", res.OwnerID,
		"sender_id", connID,
		"target_id", res.TargetID)
}

// announceDeparture tells the departed room's publisher its updated record
// set and mirrors the departure.
func (e *Engine) announceDeparture(left rooms.LeaveInfo, connID string) {
	e.sender.Send(left.PublisherID, newRecordsEvent(messageTypeAvailableRecords, left.RoomID, left.Records))
	e.publishAnnounce(announce.KindMemberLeft, left.RoomID, connID, "")
	e.log.Info("subscriber left", "room_id", left.RoomID, "conn_id", connID, "record_idle", left.RecordIdle)
}

func (e *Engine) ackOK(connID string, msg clientMessage, roomID, ownerID string) {
	if msg.Ack == nil {
		return
	}
	e.sender.Send(connID, ackEvent{
		Type:    messageTypeAck,
		Ack:     *msg.Ack,
		Status:  ackStatusOK,
		RoomID:  roomID,
		OwnerID: ownerID,
	})
}

func (e *Engine) ackIgnored(connID string, msg clientMessage, reason string) {
	if msg.Ack == nil {
		return
	}
	e.sender.Send(connID, ackEvent{
		Type:   messageTypeAck,
		Ack:    *msg.Ack,
		Status: ackStatusIgnored,
		Reason: reason,
	})
}

func (e *Engine) publishAnnounce(kind, roomID, connID, reason string) {
	e.announce.Publish(announce.Event{
		Kind:   kind,
		RoomID: roomID,
		ConnID: connID,
		Reason: reason,
		At:     e.now(),
	})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		return reasonRoomNotFound
	case errors.Is(err, rooms.ErrRoomFull):
		return reasonRoomFull
	case errors.Is(err, rooms.ErrTooManyRooms):
		return reasonTooManyRooms
	case errors.Is(err, rooms.ErrNotAMember):
		return reasonNotAMember
	case errors.Is(err, rooms.ErrSubscriberNotFound):
		return reasonSubscriberNotFound
	case errors.Is(err, errMissingRoomID):
		return reasonMissingRoomID
	default:
		return err.Error()
	}
}
