package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"

	"github.com/Sanyam1207/AudioSharingBackendSIH2025/internal/rooms"
)

type messageType string

const (
	// Client to server.
	messageTypeCreate       messageType = "create"
	messageTypeJoin         messageType = "join"
	messageTypeNewOffer     messageType = "newOffer"
	messageTypeNewAnswer    messageType = "newAnswer"
	messageTypeICECandidate messageType = "iceCandidate"

	// Server to client.
	messageTypeWelcome             messageType = "welcome"
	messageTypeAck                 messageType = "ack"
	messageTypeRoomClosed          messageType = "roomClosed"
	messageTypeNewRecordAwaiting   messageType = "newRecordAwaiting"
	messageTypeAvailableRecords    messageType = "availableRecords"
	messageTypeAnswerDelivered     messageType = "answerDelivered"
	messageTypeICECandidateRelayed messageType = "iceCandidateRelayed"
)

type sdp struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func sdpFromPion(desc webrtc.SessionDescription) sdp {
	return sdp{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (s sdp) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

type candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func candidateFromPion(init webrtc.ICECandidateInit) candidate {
	return candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Field errors mark messages whose kind and correlation id decoded fine but
// which lack a required field or carry an unusable one. Handlers answer them
// on the kind's rejection channel (roomClosed, negative ack, or drop-and-log)
// instead of terminating the connection.
var (
	errMissingRoomID    = errors.New("missing roomId")
	errMissingOwnerID   = errors.New("missing ownerId")
	errMissingOffer     = errors.New("missing offer")
	errNotAnOffer       = errors.New(`offer sdp type must be "offer"`)
	errMissingAnswer    = errors.New("missing answer")
	errNotAnAnswer      = errors.New(`answer sdp type must be "answer"`)
	errMissingCandidate = errors.New("missing candidate")
)

func isFieldError(err error) bool {
	for _, fieldErr := range []error{
		errMissingRoomID,
		errMissingOwnerID,
		errMissingOffer,
		errNotAnOffer,
		errMissingAnswer,
		errNotAnAnswer,
		errMissingCandidate,
	} {
		if errors.Is(err, fieldErr) {
			return true
		}
	}
	return false
}

// clientMessage is the envelope for every client-to-server message. Ack, when
// present, asks the server to answer with an ack message echoing the same
// number; candidate relays are fire-and-forget and never acked.
//
// SenderID is accepted for wire compatibility but ignored: the connection a
// candidate arrives on identifies the sender.
type clientMessage struct {
	Type messageType `json:"type"`
	Ack  *uint64     `json:"ack,omitempty"`

	RoomID    string     `json:"roomId,omitempty"`
	OwnerID   string     `json:"ownerId,omitempty"`
	SenderID  string     `json:"senderId,omitempty"`
	Offer     *sdp       `json:"offer,omitempty"`
	Answer    *sdp       `json:"answer,omitempty"`
	Candidate *candidate `json:"candidate,omitempty"`
}

// parseClientMessage decodes data strictly: unknown fields, trailing data, and
// unsupported message types are hard errors. Missing required fields return
// the decoded message together with a field error so the caller can still
// correlate its response.
func parseClientMessage(data []byte) (clientMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg clientMessage
	if err := dec.Decode(&msg); err != nil {
		return clientMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return clientMessage{}, errors.New("unexpected trailing data")
	}
	return msg, msg.validate()
}

func (m clientMessage) validate() error {
	switch m.Type {
	case messageTypeCreate, messageTypeJoin:
		if m.OwnerID != "" || m.SenderID != "" || m.Offer != nil || m.Answer != nil || m.Candidate != nil {
			return fmt.Errorf("%s message has unexpected fields", m.Type)
		}
		if m.RoomID == "" {
			return errMissingRoomID
		}
	case messageTypeNewOffer:
		if m.RoomID != "" || m.OwnerID != "" || m.SenderID != "" || m.Answer != nil || m.Candidate != nil {
			return errors.New("newOffer message has unexpected fields")
		}
		if m.Offer == nil {
			return errMissingOffer
		}
		if m.Offer.SDP == "" {
			return fmt.Errorf("%w: empty sdp", errMissingOffer)
		}
		if desc, err := m.Offer.ToPion(); err != nil || desc.Type != webrtc.SDPTypeOffer {
			return errNotAnOffer
		}
	case messageTypeNewAnswer:
		if m.RoomID != "" || m.SenderID != "" || m.Offer != nil || m.Candidate != nil {
			return errors.New("newAnswer message has unexpected fields")
		}
		if m.OwnerID == "" {
			return errMissingOwnerID
		}
		if m.Answer == nil {
			return errMissingAnswer
		}
		if m.Answer.SDP == "" {
			return fmt.Errorf("%w: empty sdp", errMissingAnswer)
		}
		if desc, err := m.Answer.ToPion(); err != nil || desc.Type != webrtc.SDPTypeAnswer {
			return errNotAnAnswer
		}
	case messageTypeICECandidate:
		if m.RoomID != "" || m.Offer != nil || m.Answer != nil {
			return errors.New("iceCandidate message has unexpected fields")
		}
		if m.OwnerID == "" {
			return errMissingOwnerID
		}
		// An empty candidate string is the end-of-candidates marker and is
		// relayed like any other candidate.
		if m.Candidate == nil {
			return errMissingCandidate
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// Server-to-client events. Every event carries its type so browser clients
// can dispatch on a single field.

type welcomeEvent struct {
	Type   messageType `json:"type"`
	ConnID string      `json:"connId"`
}

func newWelcomeEvent(connID string) welcomeEvent {
	return welcomeEvent{Type: messageTypeWelcome, ConnID: connID}
}

type roomClosedEvent struct {
	Type   messageType `json:"type"`
	RoomID string      `json:"roomId,omitempty"`
	Reason string      `json:"reason"`
}

func newRoomClosedEvent(roomID, reason string) roomClosedEvent {
	return roomClosedEvent{Type: messageTypeRoomClosed, RoomID: roomID, Reason: reason}
}

// recordsEvent carries negotiation records to a publisher: the full current
// set (availableRecords) or a single fresh offer (newRecordAwaiting).
type recordsEvent struct {
	Type    messageType            `json:"type"`
	RoomID  string                 `json:"roomId"`
	Records []rooms.RecordSnapshot `json:"records"`
}

func newRecordsEvent(kind messageType, roomID string, records []rooms.RecordSnapshot) recordsEvent {
	if records == nil {
		records = []rooms.RecordSnapshot{}
	}
	return recordsEvent{Type: kind, RoomID: roomID, Records: records}
}

type answerDeliveredEvent struct {
	Type   messageType          `json:"type"`
	RoomID string               `json:"roomId"`
	Record rooms.RecordSnapshot `json:"record"`
}

func newAnswerDeliveredEvent(roomID string, rec rooms.RecordSnapshot) answerDeliveredEvent {
	return answerDeliveredEvent{Type: messageTypeAnswerDelivered, RoomID: roomID, Record: rec}
}

type candidateRelayedEvent struct {
	Type      messageType     `json:"type"`
	SenderID  string          `json:"senderId"`
	Candidate json.RawMessage `json:"candidate"`
}

func newCandidateRelayedEvent(senderID string, cand json.RawMessage) candidateRelayedEvent {
	return candidateRelayedEvent{Type: messageTypeICECandidateRelayed, SenderID: senderID, Candidate: cand}
}

const (
	ackStatusOK      = "ok"
	ackStatusIgnored = "ignored"
)

type ackEvent struct {
	Type    messageType `json:"type"`
	Ack     uint64      `json:"ack"`
	Status  string      `json:"status"`
	RoomID  string      `json:"roomId,omitempty"`
	OwnerID string      `json:"ownerId,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// ackCandidatesEvent acknowledges a delivered answer with the candidate
// sequence collected for that record so far. Candidates is always an array,
// never null.
type ackCandidatesEvent struct {
	Type       messageType       `json:"type"`
	Ack        uint64            `json:"ack"`
	Status     string            `json:"status"`
	OwnerID    string            `json:"ownerId"`
	Candidates []json.RawMessage `json:"candidates"`
}

func newAckCandidatesEvent(ack uint64, ownerID string, cands []json.RawMessage) ackCandidatesEvent {
	if cands == nil {
		cands = []json.RawMessage{}
	}
	return ackCandidatesEvent{
		Type:       messageTypeAck,
		Ack:        ack,
		Status:     ackStatusOK,
		OwnerID:    ownerID,
		Candidates: cands,
	}
}
