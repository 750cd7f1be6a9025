package ntag424

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/skythen/apdu"
)

// commandIV derives the per-command IV: E(KeyEnc, label || TI || ctr || 0^8).
func commandIV(s Session, label [2]byte, ctr uint16) ([]byte, error) {
	seed := make([]byte, 16)
	copy(seed[0:2], label[:])
	copy(seed[2:6], s.TI)
	binary.LittleEndian.PutUint16(seed[6:8], ctr)
	return EncryptCBC(s.KeyEnc, nil, seed)
}

// EncryptData encrypts plaintext for the next secure command of the session.
// The output length is always a multiple of 16.
func EncryptData(s Session, plaintext []byte) ([]byte, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	iv, err := commandIV(s, [2]byte{0xA5, 0x5A}, s.CmdCounter)
	if err != nil {
		return nil, err
	}
	return EncryptCBC(s.KeyEnc, iv, Pad(plaintext, 16))
}

// MACCommand computes the 8-byte MAC for a secure command at the current
// command counter: CMACShort(KeyMAC, INS || ctr || TI || header || enc).
func MACCommand(s Session, ins byte, header, enc []byte) ([]byte, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	in := make([]byte, 0, 7+len(header)+len(enc))
	in = append(in, ins)
	in = binary.LittleEndian.AppendUint16(in, s.CmdCounter)
	in = append(in, s.TI...)
	in = append(in, header...)
	in = append(in, enc...)
	return CMACShort(s.KeyMAC, in)
}

// BuildSecureCommand assembles a full-mode secure messaging command:
//
//	90 INS 00 00 Lc header enc(data) mac(8) 00
//
// The returned session has its command counter advanced by exactly one.
// Nothing is built for a session that is not authenticated.
func BuildSecureCommand(s Session, ins byte, header, data []byte) (Session, []byte, error) {
	if !s.Authenticated() {
		return s, nil, ErrNotAuthenticated
	}
	var enc []byte
	if len(data) > 0 {
		var err error
		if enc, err = EncryptData(s, data); err != nil {
			return s, nil, err
		}
	}
	mac, err := MACCommand(s, ins, header, enc)
	if err != nil {
		return s, nil, err
	}

	body := make([]byte, 0, len(header)+len(enc)+len(mac))
	body = append(body, header...)
	body = append(body, enc...)
	body = append(body, mac...)
	if len(body) > 0xFF {
		return s, nil, fmt.Errorf("secure command 0x%02X: %d data bytes exceed short APDU", ins, len(body))
	}

	cmd := NativeCommand(ins, body)
	slog.Debug("secure messaging",
		"cmd", fmt.Sprintf("0x%02X", ins),
		"ctr", s.CmdCounter,
		"apdu", upperHex(cmd))

	next := s
	next.CmdCounter++
	return next, cmd, nil
}

// VerifyResponse checks the status word and, when the tag returned one, the
// response MAC of a secure command. s is the session returned by
// BuildSecureCommand, so its counter is already the one the tag used.
// The decrypted response data is returned for full-mode responses.
func VerifyResponse(s Session, ins byte, r apdu.Rapdu) ([]byte, error) {
	sw := SW(r)
	if sw != SWDESFireOK {
		return nil, &SWError{Cmd: ins, SW: sw}
	}
	if len(r.Data) < 8 {
		return nil, nil
	}

	encLen := len(r.Data) - 8
	respEnc := r.Data[:encLen]
	respMAC := r.Data[encLen:]

	in := make([]byte, 0, 7+encLen)
	in = append(in, r.SW2)
	in = binary.LittleEndian.AppendUint16(in, s.CmdCounter)
	in = append(in, s.TI...)
	in = append(in, respEnc...)
	want, err := CMACShort(s.KeyMAC, in)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(respMAC, want) {
		return nil, ErrResponseMAC
	}
	if encLen == 0 {
		return []byte{}, nil
	}

	iv, err := commandIV(s, [2]byte{0x5A, 0xA5}, s.CmdCounter)
	if err != nil {
		return nil, err
	}
	dec, err := DecryptCBC(s.KeyEnc, iv, respEnc)
	if err != nil {
		return nil, err
	}
	return unpadISO9797M2(dec)
}

// SsmCmdFull sends one secure command over card and verifies the reply.
func SsmCmdFull(card Card, s Session, ins byte, header, data []byte) (Session, []byte, error) {
	next, cmd, err := BuildSecureCommand(s, ins, header, data)
	if err != nil {
		return s, nil, err
	}
	r, err := Exchange(card, cmd)
	if err != nil {
		return next, nil, err
	}
	out, err := VerifyResponse(next, ins, r)
	return next, out, err
}
