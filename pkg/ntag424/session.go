package ntag424

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Session is the authentication state for one tag interaction.
//
// Session is a value: protocol steps take the current Session and return the
// next one. The byte slices it holds are never written to after they are set,
// so copies of a Session can be kept around without aliasing surprises.
type Session struct {
	Key        []byte // key currently believed to be on the tag
	RndA       []byte // our challenge, fixed at construction
	RndB       []byte // tag challenge, set by AuthResponse
	KeyEnc     []byte // session encryption key
	KeyMAC     []byte // session MAC key
	TI         []byte // transaction identifier
	CmdCounter uint16 // secure commands sent so far
}

// NewSession returns a fresh session for key with a random RndA.
func NewSession(key []byte) (Session, error) {
	return NewSessionRand(key, rand.Reader)
}

// NewSessionRand is NewSession with an explicit source for RndA.
func NewSessionRand(key []byte, r io.Reader) (Session, error) {
	if len(key) != 16 {
		return Session{}, fmt.Errorf("session key must be 16 bytes, got %d", len(key))
	}
	rndA := make([]byte, 16)
	if _, err := io.ReadFull(r, rndA); err != nil {
		return Session{}, fmt.Errorf("generate rndA: %w", err)
	}
	return Session{Key: clone(key), RndA: rndA}, nil
}

// Authenticated reports whether session keys and TI are present.
func (s Session) Authenticated() bool {
	return len(s.KeyEnc) > 0 && len(s.KeyMAC) > 0 && len(s.TI) > 0
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
