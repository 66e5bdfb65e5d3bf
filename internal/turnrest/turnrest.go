// Package turnrest mints coturn-compatible TURN REST credentials.
//
// The TURN REST API (draft-uberti-behave-turn-rest) derives short-lived TURN
// credentials from a shared secret instead of provisioning accounts:
//
//	username   = <unix expiry>:<prefix>:<session id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// coturn verifies these when run with use-auth-secret and the same
// static-auth-secret. Expiry is computed from the server clock in UTC.
package turnrest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string

	// Now and SessionID are test seams. Both default to real sources.
	Now       func() time.Time
	SessionID func() (string, error)
}

// Generator mints credentials for one shared secret. Safe for concurrent use.
type Generator struct {
	secret []byte
	ttl    int64
	prefix string

	now       func() time.Time
	sessionID func() (string, error)
}

func New(cfg Config) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTLSeconds <= 0 {
		return nil, errors.New("TTLSeconds must be > 0")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("UsernamePrefix is required")
	}
	// The username is colon-delimited; a colon inside a segment would shift
	// the fields coturn parses.
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("UsernamePrefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionID == nil {
		cfg.SessionID = randomSessionID
	}
	return &Generator{
		secret:    []byte(cfg.SharedSecret),
		ttl:       cfg.TTLSeconds,
		prefix:    cfg.UsernamePrefix,
		now:       cfg.Now,
		sessionID: cfg.SessionID,
	}, nil
}

// Credentials is one minted username/credential pair.
type Credentials struct {
	Username   string
	Credential string
	ExpiresAt  int64
}

func (g *Generator) TTLSeconds() int64 {
	return g.ttl
}

// Mint derives credentials tied to sessionID, valid until now+TTL.
func (g *Generator) Mint(sessionID string) (Credentials, error) {
	if sessionID == "" {
		return Credentials{}, errors.New("sessionID is required")
	}
	if strings.Contains(sessionID, ":") {
		return Credentials{}, errors.New("sessionID must not contain ':'")
	}
	expiresAt := g.now().UTC().Unix() + g.ttl
	username := fmt.Sprintf("%d:%s:%s", expiresAt, g.prefix, sessionID)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		ExpiresAt:  expiresAt,
	}, nil
}

// MintRandom mints credentials for a fresh random session id. Used by GET /ice
// where callers are anonymous.
func (g *Generator) MintRandom() (Credentials, error) {
	sessionID, err := g.sessionID()
	if err != nil {
		return Credentials{}, err
	}
	return g.Mint(sessionID)
}

func randomSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
