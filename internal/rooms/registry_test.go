package rooms

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func testRegistry(limits Limits) *Registry {
	return NewRegistry(limits, func() time.Time { return time.Unix(1_700_000_000, 0).UTC() })
}

func cand(s string) json.RawMessage {
	return json.RawMessage(`{"candidate":"` + s + `"}`)
}

func sdpOffer(s string) json.RawMessage {
	return json.RawMessage(`{"type":"offer","sdp":"` + s + `"}`)
}

func sdpAnswer(s string) json.RawMessage {
	return json.RawMessage(`{"type":"answer","sdp":"` + s + `"}`)
}

func TestRegistry_CreateOrClaim_NewRoom(t *testing.T) {
	reg := testRegistry(Limits{})

	res, err := reg.CreateOrClaim("R1", "P1")
	if err != nil {
		t.Fatalf("CreateOrClaim: %v", err)
	}
	if res.Existing {
		t.Fatalf("Existing=true for a fresh room")
	}
	if room, ok := reg.ResolveAsPublisher("P1"); !ok || room != "R1" {
		t.Fatalf("ResolveAsPublisher=%q,%v, want R1,true", room, ok)
	}
}

func TestRegistry_CreateOrClaim_LastClaimWins(t *testing.T) {
	reg := testRegistry(Limits{})

	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("CreateOrClaim P1: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("Join S1: %v", err)
	}
	if _, err := reg.UpsertOffer("S1", sdpOffer("o1")); err != nil {
		t.Fatalf("UpsertOffer S1: %v", err)
	}

	res, err := reg.CreateOrClaim("R1", "P2")
	if err != nil {
		t.Fatalf("CreateOrClaim P2: %v", err)
	}
	if !res.Existing {
		t.Fatalf("Existing=false on reclaim")
	}
	if res.PreviousPublisher != "P1" {
		t.Fatalf("PreviousPublisher=%q, want P1", res.PreviousPublisher)
	}
	if len(res.Records) != 1 || res.Records[0].OwnerID != "S1" {
		t.Fatalf("reclaim records=%+v, want the preserved S1 record", res.Records)
	}
	if string(res.Records[0].Offer) != string(sdpOffer("o1")) {
		t.Fatalf("reclaimed offer=%s, want o1", res.Records[0].Offer)
	}

	if room, ok := reg.ResolveAsPublisher("P2"); !ok || room != "R1" {
		t.Fatalf("ResolveAsPublisher(P2)=%q,%v, want R1,true", room, ok)
	}
	if _, ok := reg.ResolveAsPublisher("P1"); ok {
		t.Fatalf("P1 still resolves as publisher after losing the slot")
	}
}

func TestRegistry_CreateOrClaim_SamePublisherIdempotent(t *testing.T) {
	reg := testRegistry(Limits{})

	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	res, err := reg.CreateOrClaim("R1", "P1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !res.Existing || res.PreviousPublisher != "P1" {
		t.Fatalf("second claim res=%+v, want Existing with PreviousPublisher=P1", res)
	}
	if got := reg.Stats().Rooms; got != 1 {
		t.Fatalf("Rooms=%d, want 1", got)
	}
}

func TestRegistry_CreateOrClaim_MovingPublisherVacatesOldRoom(t *testing.T) {
	reg := testRegistry(Limits{})

	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim R1: %v", err)
	}
	if _, err := reg.CreateOrClaim("R2", "P1"); err != nil {
		t.Fatalf("claim R2: %v", err)
	}
	if room, ok := reg.ResolveAsPublisher("P1"); !ok || room != "R2" {
		t.Fatalf("ResolveAsPublisher=%q,%v, want R2,true", room, ok)
	}

	// R1 still exists with a vacant slot; joining it works but there is no
	// publisher to announce to.
	res, err := reg.Join("R1", "S1")
	if err != nil {
		t.Fatalf("Join R1: %v", err)
	}
	if res.PublisherID != "" {
		t.Fatalf("PublisherID=%q, want vacant", res.PublisherID)
	}
}

func TestRegistry_CreateOrClaim_MaxRooms(t *testing.T) {
	reg := testRegistry(Limits{MaxRooms: 1})

	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim R1: %v", err)
	}
	if _, err := reg.CreateOrClaim("R2", "P2"); !errors.Is(err, ErrTooManyRooms) {
		t.Fatalf("claim R2 err=%v, want ErrTooManyRooms", err)
	}
	// Claiming an existing room is not a create and stays allowed.
	if _, err := reg.CreateOrClaim("R1", "P2"); err != nil {
		t.Fatalf("reclaim R1: %v", err)
	}
}

func TestRegistry_Join_UnknownRoom(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.Join("nope", "S1"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Join err=%v, want ErrRoomNotFound", err)
	}
}

func TestRegistry_Join_CreatesShellWithoutAnnouncingIt(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	res, err := reg.Join("R1", "S1")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.PublisherID != "P1" {
		t.Fatalf("PublisherID=%q, want P1", res.PublisherID)
	}
	if len(res.Records) != 0 {
		t.Fatalf("Records=%+v, want none announced for an empty shell", res.Records)
	}
	// The shell exists in the store even though it is not announced.
	if got := reg.Stats().Records; got != 1 {
		t.Fatalf("stored records=%d, want 1", got)
	}
	if room, ok := reg.ResolveAsSubscriber("S1"); !ok || room != "R1" {
		t.Fatalf("ResolveAsSubscriber=%q,%v, want R1,true", room, ok)
	}
}

func TestRegistry_Join_FlushesPendingCandidatesInOrder(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// S1 has not joined anywhere; its candidates park in the pending buffer.
	for _, c := range []string{"c1", "c2"} {
		route, err := reg.AppendCandidate("S1", "S1", cand(c))
		if err != nil {
			t.Fatalf("AppendCandidate(%s): %v", c, err)
		}
		if !route.Buffered {
			t.Fatalf("candidate %s not buffered", c)
		}
	}
	if st := reg.Stats(); st.PendingOwners != 1 || st.PendingCandidates != 2 {
		t.Fatalf("pending stats=%+v, want 1 owner / 2 candidates", st)
	}

	res, err := reg.Join("R1", "S1")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Flushed != 2 {
		t.Fatalf("Flushed=%d, want 2", res.Flushed)
	}
	if len(res.Records) != 1 {
		t.Fatalf("Records=%+v, want the flushed S1 record", res.Records)
	}
	got := res.Records[0].Candidates
	if len(got) != 2 || string(got[0]) != string(cand("c1")) || string(got[1]) != string(cand("c2")) {
		t.Fatalf("candidates=%v, want [c1 c2] in arrival order", got)
	}
	if st := reg.Stats(); st.PendingOwners != 0 || st.PendingCandidates != 0 {
		t.Fatalf("pending stats=%+v after flush, want empty", st)
	}
}

func TestRegistry_Join_SecondJoinIdempotent(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	res, err := reg.Join("R1", "S1")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if res.Left != nil {
		t.Fatalf("Left=%+v on a rejoin of the same room", res.Left)
	}
	if st := reg.Stats(); st.Subscribers != 1 || st.Records != 1 {
		t.Fatalf("stats=%+v, want 1 subscriber / 1 record", st)
	}
}

func TestRegistry_Join_MovesSubscriptionBetweenRooms(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim R1: %v", err)
	}
	if _, err := reg.CreateOrClaim("R2", "P2"); err != nil {
		t.Fatalf("claim R2: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join R1: %v", err)
	}
	if _, err := reg.UpsertOffer("S1", sdpOffer("o1")); err != nil {
		t.Fatalf("offer: %v", err)
	}

	res, err := reg.Join("R2", "S1")
	if err != nil {
		t.Fatalf("join R2: %v", err)
	}
	if res.Left == nil || res.Left.RoomID != "R1" || res.Left.PublisherID != "P1" {
		t.Fatalf("Left=%+v, want departure info for R1", res.Left)
	}
	if len(res.Left.Records) != 0 {
		t.Fatalf("R1 records after departure=%+v, want none", res.Left.Records)
	}
	if room, ok := reg.ResolveAsSubscriber("S1"); !ok || room != "R2" {
		t.Fatalf("ResolveAsSubscriber=%q,%v, want R2,true", room, ok)
	}
}

func TestRegistry_Join_MaxSubscribersPerRoom(t *testing.T) {
	reg := testRegistry(Limits{MaxSubscribersPerRoom: 1})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join S1: %v", err)
	}
	if _, err := reg.Join("R1", "S2"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("join S2 err=%v, want ErrRoomFull", err)
	}
	// Rejoining does not count against the cap.
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("rejoin S1: %v", err)
	}
}

func TestRegistry_UpsertOffer_CreatesThenOverwrites(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	res, err := reg.UpsertOffer("S1", sdpOffer("o1"))
	if err != nil {
		t.Fatalf("UpsertOffer: %v", err)
	}
	if res.RoomID != "R1" || res.PublisherID != "P1" {
		t.Fatalf("res=%+v, want room R1 publisher P1", res)
	}
	if res.Record.OwnerID != "S1" || string(res.Record.Offer) != string(sdpOffer("o1")) {
		t.Fatalf("record=%+v, want S1 with offer o1", res.Record)
	}
	if res.Record.Answer != nil || len(res.Record.Candidates) != 0 {
		t.Fatalf("fresh record has answer/candidates: %+v", res.Record)
	}

	// A renegotiation overwrites the offer but keeps candidates.
	if _, err := reg.AppendCandidate("S1", "S1", cand("c1")); err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}
	res, err = reg.UpsertOffer("S1", sdpOffer("o2"))
	if err != nil {
		t.Fatalf("UpsertOffer again: %v", err)
	}
	if string(res.Record.Offer) != string(sdpOffer("o2")) {
		t.Fatalf("offer=%s, want o2", res.Record.Offer)
	}
	if len(res.Record.Candidates) != 1 || string(res.Record.Candidates[0]) != string(cand("c1")) {
		t.Fatalf("candidates=%v, want preserved [c1]", res.Record.Candidates)
	}
}

func TestRegistry_UpsertOffer_NotAMember(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.UpsertOffer("S1", sdpOffer("o1")); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err=%v, want ErrNotAMember", err)
	}
}

func TestRegistry_SetAnswer_ReturnsCandidateSequence(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := reg.UpsertOffer("S1", sdpOffer("o1")); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := reg.AppendCandidate("S1", "S1", cand("c1")); err != nil {
		t.Fatalf("candidate: %v", err)
	}

	res, err := reg.SetAnswer("P1", "S1", sdpAnswer("a1"))
	if err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if res.RoomID != "R1" {
		t.Fatalf("RoomID=%q, want R1", res.RoomID)
	}
	if string(res.Record.Answer) != string(sdpAnswer("a1")) {
		t.Fatalf("answer=%s, want a1", res.Record.Answer)
	}
	if string(res.Record.Offer) != string(sdpOffer("o1")) {
		t.Fatalf("offer=%s, want preserved o1", res.Record.Offer)
	}
	if len(res.Candidates) != 1 || string(res.Candidates[0]) != string(cand("c1")) {
		t.Fatalf("Candidates=%v, want [c1]", res.Candidates)
	}
}

func TestRegistry_SetAnswer_UnknownSubscriber(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.SetAnswer("P1", "ghost", sdpAnswer("a1")); !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("err=%v, want ErrSubscriberNotFound", err)
	}
}

func TestRegistry_SetAnswer_NotAMember(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.SetAnswer("P1", "S1", sdpAnswer("a1")); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("err=%v, want ErrNotAMember", err)
	}
}

func TestRegistry_AppendCandidate_SubscriberToPublisher(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	route, err := reg.AppendCandidate("S1", "S1", cand("c1"))
	if err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}
	if route.Buffered {
		t.Fatalf("buffered despite a resolvable room")
	}
	if route.RoomID != "R1" || route.OwnerID != "S1" || route.TargetID != "P1" {
		t.Fatalf("route=%+v, want R1/S1 forwarded to P1", route)
	}
}

func TestRegistry_AppendCandidate_PublisherToSubscriber(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	route, err := reg.AppendCandidate("P1", "S1", cand("pc1"))
	if err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}
	if route.Buffered || route.TargetID != "S1" || route.OwnerID != "S1" {
		t.Fatalf("route=%+v, want forward to S1 on S1's record", route)
	}
}

func TestRegistry_AppendCandidate_NormalizesFlippedPair(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Subscriber names the publisher as owner; the record stays keyed by the
	// subscriber and the candidate goes to the publisher.
	route, err := reg.AppendCandidate("S1", "P1", cand("c1"))
	if err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}
	if route.Buffered || route.OwnerID != "S1" || route.TargetID != "P1" {
		t.Fatalf("route=%+v, want owner normalized to S1, target P1", route)
	}
}

func TestRegistry_AppendCandidate_BuffersWhenUnroutable(t *testing.T) {
	reg := testRegistry(Limits{})

	route, err := reg.AppendCandidate("P1", "S1", cand("c1"))
	if err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}
	if !route.Buffered || route.OwnerID != "S1" {
		t.Fatalf("route=%+v, want buffered under S1", route)
	}
	if st := reg.Stats(); st.PendingCandidates != 1 {
		t.Fatalf("PendingCandidates=%d, want 1", st.PendingCandidates)
	}
}

func TestRegistry_AppendCandidate_PendingBufferCap(t *testing.T) {
	reg := testRegistry(Limits{MaxPendingCandidates: 1})

	if _, err := reg.AppendCandidate("X", "X", cand("c1")); err != nil {
		t.Fatalf("first buffered candidate: %v", err)
	}
	if _, err := reg.AppendCandidate("Y", "Y", cand("c2")); !errors.Is(err, ErrPendingBufferFull) {
		t.Fatalf("err=%v, want ErrPendingBufferFull", err)
	}
}

func TestRegistry_AppendCandidate_ArrivalOrderAcrossFlush(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Buffered before S1 joins, appended after; the record must read in
	// arrival order.
	if _, err := reg.AppendCandidate("S1", "S1", cand("early")); err != nil {
		t.Fatalf("buffered candidate: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := reg.AppendCandidate("S1", "S1", cand("late")); err != nil {
		t.Fatalf("direct candidate: %v", err)
	}

	res, err := reg.SetAnswer("P1", "S1", sdpAnswer("a1"))
	if err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if len(res.Candidates) != 2 ||
		string(res.Candidates[0]) != string(cand("early")) ||
		string(res.Candidates[1]) != string(cand("late")) {
		t.Fatalf("candidates=%v, want [early late]", res.Candidates)
	}
}

func TestRegistry_DropConnection_PublisherDestroysRoom(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for _, s := range []string{"S1", "S2"} {
		if _, err := reg.Join("R1", s); err != nil {
			t.Fatalf("join %s: %v", s, err)
		}
	}

	res := reg.DropConnection("P1")
	if res.ClosedRoomID != "R1" {
		t.Fatalf("ClosedRoomID=%q, want R1", res.ClosedRoomID)
	}
	if len(res.Members) != 2 || res.Members[0] != "S1" || res.Members[1] != "S2" {
		t.Fatalf("Members=%v, want [S1 S2]", res.Members)
	}

	if _, err := reg.Join("R1", "S3"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("join after destroy err=%v, want ErrRoomNotFound", err)
	}
	if _, ok := reg.ResolveAsSubscriber("S1"); ok {
		t.Fatalf("S1 still resolves as subscriber of a destroyed room")
	}
	if st := reg.Stats(); st.Rooms != 0 || st.Subscribers != 0 || st.Records != 0 {
		t.Fatalf("stats=%+v after destroy, want empty", st)
	}
}

func TestRegistry_DropConnection_SubscriberLeaves(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for _, s := range []string{"S1", "S2"} {
		if _, err := reg.Join("R1", s); err != nil {
			t.Fatalf("join %s: %v", s, err)
		}
		if _, err := reg.UpsertOffer(s, sdpOffer("o-"+s)); err != nil {
			t.Fatalf("offer %s: %v", s, err)
		}
	}

	res := reg.DropConnection("S1")
	if res.ClosedRoomID != "" {
		t.Fatalf("ClosedRoomID=%q for a subscriber drop", res.ClosedRoomID)
	}
	if res.LeftRoomID != "R1" || res.PublisherID != "P1" {
		t.Fatalf("res=%+v, want departure from R1 announced to P1", res)
	}
	if len(res.Records) != 1 || res.Records[0].OwnerID != "S2" {
		t.Fatalf("Records=%+v, want only S2 remaining", res.Records)
	}
	if room, ok := reg.ResolveSharedRoom("S2", "S2"); !ok || room != "R1" {
		t.Fatalf("surviving subscriber lost its room: %q,%v", room, ok)
	}
}

func TestRegistry_DropConnection_DropsPendingBufferEntry(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.AppendCandidate("S1", "S1", cand("c1")); err != nil {
		t.Fatalf("buffered candidate: %v", err)
	}

	res := reg.DropConnection("S1")
	if res.PendingDropped != 1 {
		t.Fatalf("PendingDropped=%d, want 1", res.PendingDropped)
	}
	if st := reg.Stats(); st.PendingOwners != 0 || st.PendingCandidates != 0 {
		t.Fatalf("pending stats=%+v, want empty", st)
	}
}

func TestRegistry_DropConnection_Idempotent(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	first := reg.DropConnection("P1")
	if first.ClosedRoomID != "R1" {
		t.Fatalf("first drop=%+v, want closed R1", first)
	}
	second := reg.DropConnection("P1")
	if second.ClosedRoomID != "" || second.LeftRoomID != "" || second.PendingDropped != 0 {
		t.Fatalf("second drop=%+v, want nothing to do", second)
	}
}

func TestRegistry_Destroy_Idempotent(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	reg.Destroy("R1")
	reg.Destroy("R1")
	if st := reg.Stats(); st.Rooms != 0 {
		t.Fatalf("Rooms=%d, want 0", st.Rooms)
	}
	if _, ok := reg.ResolveAsPublisher("P1"); ok {
		t.Fatalf("publisher entry survived Destroy")
	}
}

func TestRegistry_ResolveSharedRoom(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "S1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	cases := []struct {
		name     string
		sender   string
		owner    string
		wantRoom string
		wantOK   bool
	}{
		{"subscriber self pair", "S1", "S1", "R1", true},
		{"publisher to subscriber", "P1", "S1", "R1", true},
		{"flipped pair", "S1", "P1", "R1", true},
		{"stranger sender", "X", "S1", "", false},
		{"stranger owner", "P1", "X", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			room, ok := reg.ResolveSharedRoom(tc.sender, tc.owner)
			if room != tc.wantRoom || ok != tc.wantOK {
				t.Fatalf("ResolveSharedRoom(%q,%q)=%q,%v, want %q,%v",
					tc.sender, tc.owner, room, ok, tc.wantRoom, tc.wantOK)
			}
		})
	}
}

func TestRegistry_PublisherCanSubscribeToOwnRoom(t *testing.T) {
	reg := testRegistry(Limits{})
	if _, err := reg.CreateOrClaim("R1", "P1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := reg.Join("R1", "P1"); err != nil {
		t.Fatalf("self join: %v", err)
	}
	if room, ok := reg.ResolveAsPublisher("P1"); !ok || room != "R1" {
		t.Fatalf("publisher role lost after self join: %q,%v", room, ok)
	}
	if room, ok := reg.ResolveAsSubscriber("P1"); !ok || room != "R1" {
		t.Fatalf("subscriber role missing after self join: %q,%v", room, ok)
	}

	res := reg.DropConnection("P1")
	if res.ClosedRoomID != "R1" || len(res.Members) != 0 {
		t.Fatalf("drop=%+v, want R1 closed with no other members", res)
	}
}
