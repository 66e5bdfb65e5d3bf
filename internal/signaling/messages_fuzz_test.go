package signaling

import (
	"encoding/json"
	"reflect"
	"testing"
)

func FuzzParseClientMessage(f *testing.F) {
	f.Add([]byte(`{"type":"create","roomId":"R1"}`))
	f.Add([]byte(`{"type":"join","roomId":"R1","ack":1}`))
	f.Add([]byte(`{"type":"newOffer","offer":{"type":"offer","sdp":"v=0"}}`))
	f.Add([]byte(`{"type":"newAnswer","ownerId":"S1","answer":{"type":"answer","sdp":"v=0"},"ack":2}`))
	f.Add([]byte(`{"type":"iceCandidate","ownerId":"S1","senderId":"S1","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}}`))
	f.Add([]byte(`{"type":"iceCandidate","ownerId":"S1","candidate":{"candidate":""}}`))

	// Known-bad cases from unit tests and common mistakes.
	f.Add([]byte(`{"type":"create"}`))
	f.Add([]byte(`{"type":"create","roomId":"R1","unexpected":true}`))
	f.Add([]byte(`{"type":"newOffer","offer":{"type":"answer","sdp":"v=0"}}`))
	f.Add([]byte(`{"type":"create","roomId":"R1"}{"type":"create","roomId":"R2"}`))
	f.Add([]byte(`{"type":"bogus"}`))
	f.Add([]byte(`[]`))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		msg1, err1 := parseClientMessage(data)
		msg2, err2 := parseClientMessage(data)
		if (err1 == nil) != (err2 == nil) || isFieldError(err1) != isFieldError(err2) {
			t.Fatalf("non-deterministic parse result: err1=%v err2=%v", err1, err2)
		}
		if err1 != nil && !isFieldError(err1) {
			return
		}

		// Parsing must be stable for identical inputs.
		if !reflect.DeepEqual(msg1, msg2) {
			t.Fatalf("non-deterministic parse output: msg1=%#v msg2=%#v", msg1, msg2)
		}

		// Successful parses must always produce a message that validates.
		if err1 == nil {
			if err := msg1.validate(); err != nil {
				t.Fatalf("validate() failed after successful parse: %v", err)
			}
		}

		// Round-trip through JSON should preserve semantics, including the
		// field-error classification for incomplete messages.
		b, err := json.Marshal(msg1)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		round, roundErr := parseClientMessage(b)
		if (roundErr == nil) != (err1 == nil) || isFieldError(roundErr) != isFieldError(err1) {
			t.Fatalf("round-trip error mismatch: err=%v roundErr=%v (json=%q)", err1, roundErr, string(b))
		}
		if !reflect.DeepEqual(msg1, round) {
			t.Fatalf("round-trip mismatch: msg=%#v round=%#v json=%q", msg1, round, string(b))
		}
	})
}
