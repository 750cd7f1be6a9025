package ntag424

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/skythen/apdu"
)

// AuthResponse is the decrypted final EV2First answer from the tag.
type AuthResponse struct {
	TI            []byte // transaction identifier, 4 bytes
	RndAReflected []byte // RotateLeft(RndA, 1) as computed by the tag
	PDCap2        []byte // 6 bytes
	PCDCap2       []byte // 6 bytes
}

// ParseAuthResponse decodes the 32-byte plaintext of the second EV2First reply.
func ParseAuthResponse(plain []byte) (AuthResponse, error) {
	if len(plain) != 32 {
		return AuthResponse{}, &DecodeError{What: "auth response", Got: len(plain), Want: 32}
	}
	return AuthResponse{
		TI:            clone(plain[0:4]),
		RndAReflected: clone(plain[4:20]),
		PDCap2:        clone(plain[20:26]),
		PCDCap2:       clone(plain[26:32]),
	}, nil
}

// AuthAnswer processes the tag's encrypted RndB (status 91AF) and returns the
// session with RndB set plus the command carrying enc(RndA || RndB').
func AuthAnswer(s Session, r apdu.Rapdu) (Session, []byte, error) {
	if sw := SW(r); sw != SWMoreData || len(r.Data) != 16 {
		return s, nil, &AuthError{Step: "step1", SW: sw, RespLen: len(r.Data)}
	}
	rndB, err := DecryptCBC(s.Key, nil, r.Data)
	if err != nil {
		return s, nil, &AuthError{Step: "step1", Cause: err}
	}

	answer := make([]byte, 0, 32)
	answer = append(answer, s.RndA...)
	answer = append(answer, RotateLeft(rndB, 1)...)
	enc, err := EncryptCBC(s.Key, nil, answer)
	if err != nil {
		return s, nil, &AuthError{Step: "step2", Cause: err}
	}

	next := s
	next.RndB = rndB
	return next, NativeCommand(InsAdditionalFrame, enc), nil
}

// AuthFinalize processes the tag's final reply (status 9100), checks the
// reflected RndA and derives the session keys. The returned session is
// authenticated with its command counter at zero.
func AuthFinalize(s Session, r apdu.Rapdu) (Session, AuthResponse, error) {
	if sw := SW(r); sw != SWDESFireOK || len(r.Data) != 32 {
		return s, AuthResponse{}, &AuthError{Step: "step2", SW: sw, RespLen: len(r.Data)}
	}
	if len(s.RndB) != 16 {
		return s, AuthResponse{}, &AuthError{Step: "step2", Cause: fmt.Errorf("no challenge received")}
	}
	plain, err := DecryptCBC(s.Key, nil, r.Data)
	if err != nil {
		return s, AuthResponse{}, &AuthError{Step: "step2", Cause: err}
	}
	resp, err := ParseAuthResponse(plain)
	if err != nil {
		return s, AuthResponse{}, &AuthError{Step: "step2", Cause: err}
	}
	if !bytes.Equal(resp.RndAReflected, RotateLeft(s.RndA, 1)) {
		return s, AuthResponse{}, &AuthError{Step: "step2", Cause: ErrRndAMismatch}
	}

	kenc, kmac, err := DeriveSessionKeys(s.Key, s.RndA, s.RndB)
	if err != nil {
		return s, AuthResponse{}, &AuthError{Step: "step2", Cause: err}
	}

	slog.Debug("session keys derived",
		"rndA", upperHex(s.RndA),
		"rndB", upperHex(s.RndB),
		"ti", upperHex(resp.TI),
		"kenc", upperHex(kenc),
		"kmac", upperHex(kmac))

	next := s
	next.TI = resp.TI
	next.KeyEnc = kenc
	next.KeyMAC = kmac
	next.CmdCounter = 0
	return next, resp, nil
}

// DeriveSessionKeys computes KSesAuthENC and KSesAuthMAC from the long-term
// key and both challenges.
func DeriveSessionKeys(key, rndA, rndB []byte) (kenc, kmac []byte, err error) {
	if len(rndA) != 16 || len(rndB) != 16 {
		return nil, nil, fmt.Errorf("derive session keys: rndA %d bytes, rndB %d bytes: %w",
			len(rndA), len(rndB), ErrLengthMismatch)
	}
	mixed, err := Xor(rndA[2:8], rndB[0:6])
	if err != nil {
		return nil, nil, err
	}

	tail := make([]byte, 0, 26)
	tail = append(tail, rndA[0:2]...)
	tail = append(tail, mixed...)
	tail = append(tail, rndB[6:16]...)
	tail = append(tail, rndA[8:16]...)

	sv1 := append([]byte{0xA5, 0x5A, 0x00, 0x01, 0x00, 0x80}, tail...)
	sv2 := append([]byte{0x5A, 0xA5, 0x00, 0x01, 0x00, 0x80}, tail...)

	if kenc, err = aesCMAC(key, sv1); err != nil {
		return nil, nil, err
	}
	if kmac, err = aesCMAC(key, sv2); err != nil {
		return nil, nil, err
	}
	return kenc, kmac, nil
}

// AuthenticateEV2First runs the full two-pass handshake over card for keyNo.
// The application must already be selected.
func AuthenticateEV2First(card Card, s Session, keyNo byte) (Session, error) {
	r, err := Exchange(card, AuthFirstCommand(keyNo))
	if err != nil {
		return s, &AuthError{Step: "step1", Cause: err}
	}
	s, cmd, err := AuthAnswer(s, r)
	if err != nil {
		return s, err
	}
	r, err = Exchange(card, cmd)
	if err != nil {
		return s, &AuthError{Step: "step2", Cause: err}
	}
	s, _, err = AuthFinalize(s, r)
	return s, err
}

// AuthAttempt names one key and slot pair tried by AuthenticateWithFallback.
type AuthAttempt struct {
	Key     []byte
	KeyNo   byte
	Factory bool // the all-zero key
	Label   string
}

// AuthenticateWithFallback tries key on keyNo, then on slot 0, then the
// all-zero factory key on slot 0. It returns the first session that
// authenticates together with the attempt that worked.
func AuthenticateWithFallback(card Card, key []byte, keyNo byte) (Session, AuthAttempt, error) {
	attempts := []AuthAttempt{{Key: key, KeyNo: keyNo, Factory: isAllZero(key), Label: fmt.Sprintf("keyno %d (provided)", keyNo)}}
	if keyNo != 0 {
		attempts = append(attempts, AuthAttempt{Key: key, KeyNo: 0, Factory: isAllZero(key), Label: "keyno 0 (same key)"})
	}
	if !isAllZero(key) {
		attempts = append(attempts, AuthAttempt{Key: DefaultKey, KeyNo: 0, Factory: true, Label: "keyno 0 (all-zero fallback)"})
	}

	var lastErr error
	for i, a := range attempts {
		s, err := NewSession(a.Key)
		if err != nil {
			return Session{}, AuthAttempt{}, err
		}
		if err := SelectNDEFApp(card); err != nil {
			return Session{}, AuthAttempt{}, err
		}
		s, err = AuthenticateEV2First(card, s, a.KeyNo)
		if err == nil {
			slog.Info("authenticated", "method", a.Label)
			return s, a, nil
		}
		if i > 0 {
			slog.Warn("auth attempt failed", "method", a.Label, "error", err)
		}
		lastErr = err
	}
	return Session{}, AuthAttempt{}, lastErr
}
