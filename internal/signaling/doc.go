// Package signaling carries SDP offers, answers, and ICE candidates between a
// room's publisher and its subscribers over JSON WebSocket messages.
//
// The server never interprets session descriptions beyond validating their
// shape; peers negotiate directly and media flows peer-to-peer.
package signaling
