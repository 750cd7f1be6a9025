package tagsim

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

func (t *Tag) resetAuth() {
	t.auth = authNone
	t.rndB, t.kenc, t.kmac, t.ti = nil, nil, nil, nil
	t.ctr = 0
}

func (t *Tag) authFirst(data []byte) []byte {
	t.resetAuth()
	if !t.appSelected || len(data) < 2 {
		return sw(ntag424.SWLengthError)
	}
	keyNo := data[0]
	if int(keyNo) >= len(t.Keys) {
		return sw(0x9140)
	}
	rndB := make([]byte, 16)
	if _, err := io.ReadFull(t.Rand, rndB); err != nil {
		return sw(0x91CA)
	}
	enc, err := ntag424.EncryptCBC(t.Keys[keyNo], nil, rndB)
	if err != nil {
		return sw(0x91CA)
	}
	t.auth = authPending
	t.authKey = keyNo
	t.rndB = rndB
	return ok(enc, ntag424.SWMoreData)
}

func (t *Tag) authSecond(data []byte) []byte {
	key := t.Keys[t.authKey]
	rndB := t.rndB
	t.resetAuth()
	if len(data) != 32 {
		return sw(ntag424.SWLengthError)
	}
	plain, err := ntag424.DecryptCBC(key, nil, data)
	if err != nil {
		return sw(0x91CA)
	}
	rndA := plain[:16]
	if !bytes.Equal(plain[16:], ntag424.RotateLeft(rndB, 1)) {
		return sw(ntag424.SWAuthError)
	}

	ti := make([]byte, 4)
	if _, err := io.ReadFull(t.Rand, ti); err != nil {
		return sw(0x91CA)
	}
	resp := make([]byte, 0, 32)
	resp = append(resp, ti...)
	resp = append(resp, ntag424.RotateLeft(rndA, 1)...)
	resp = append(resp, make([]byte, 12)...)
	enc, err := ntag424.EncryptCBC(key, nil, resp)
	if err != nil {
		return sw(0x91CA)
	}
	kenc, kmac, err := ntag424.DeriveSessionKeys(key, rndA, rndB)
	if err != nil {
		return sw(0x91CA)
	}
	t.auth = authDone
	t.kenc, t.kmac, t.ti = kenc, kmac, ti
	t.ctr = 0
	return ok(enc, ntag424.SWDESFireOK)
}

// openSecure checks the MAC of a full-mode command and returns its decrypted
// payload with padding removed. The command counter is not advanced.
func (t *Tag) openSecure(ins byte, body []byte, headerLen int) (header, plain []byte, status uint16) {
	if t.auth != authDone {
		return nil, nil, ntag424.SWAuthError
	}
	if len(body) < headerLen+8 || (len(body)-headerLen-8)%16 != 0 {
		return nil, nil, ntag424.SWLengthError
	}
	header = body[:headerLen]
	enc := body[headerLen : len(body)-8]
	mac := body[len(body)-8:]

	in := []byte{ins}
	in = binary.LittleEndian.AppendUint16(in, t.ctr)
	in = append(in, t.ti...)
	in = append(in, header...)
	in = append(in, enc...)
	want, err := ntag424.CMACShort(t.kmac, in)
	if err != nil || !bytes.Equal(mac, want) {
		return nil, nil, ntag424.SWIntegrityErr
	}
	if len(enc) == 0 {
		return header, nil, ntag424.SWDESFireOK
	}

	iv, err := t.iv(0xA5, 0x5A, t.ctr)
	if err != nil {
		return nil, nil, 0x91CA
	}
	dec, err := ntag424.DecryptCBC(t.kenc, iv, enc)
	if err != nil {
		return nil, nil, 0x91CA
	}
	if unpadded, err := ntag424.Unpad(dec); err == nil {
		dec = unpadded
	}
	return header, dec, ntag424.SWDESFireOK
}

// sealOK advances the counter and answers 9100 with a response MAC.
func (t *Tag) sealOK() []byte {
	t.ctr++
	in := []byte{0x00}
	in = binary.LittleEndian.AppendUint16(in, t.ctr)
	in = append(in, t.ti...)
	mac, err := ntag424.CMACShort(t.kmac, in)
	if err != nil {
		return sw(0x91CA)
	}
	return ok(mac, ntag424.SWDESFireOK)
}

func (t *Tag) iv(l0, l1 byte, ctr uint16) ([]byte, error) {
	seed := make([]byte, 16)
	seed[0], seed[1] = l0, l1
	copy(seed[2:6], t.ti)
	binary.LittleEndian.PutUint16(seed[6:8], ctr)
	return ntag424.EncryptCBC(t.kenc, nil, seed)
}

func (t *Tag) changeFileSettings(body []byte) []byte {
	header, plain, status := t.openSecure(ntag424.InsChangeFileSettings, body, 1)
	if status != ntag424.SWDESFireOK {
		return sw(status)
	}
	if header[0] != ntag424.FileNDEF {
		return sw(0x91F0)
	}
	if change := t.settings.AR1 & 0x0F; change != ntag424.AccessFree && t.authKey != change {
		return sw(ntag424.SWPermDenied)
	}
	if len(plain) < 3 {
		return sw(ntag424.SWParameterErr)
	}

	size := uint32(ndefFileSize)
	raw := make([]byte, 0, len(plain)+4)
	raw = append(raw, 0x00)
	raw = append(raw, plain[0:3]...)
	raw = append(raw, byte(size), byte(size>>8), byte(size>>16))
	raw = append(raw, plain[3:]...)
	fs, err := ntag424.ParseFileSettings(raw)
	if err != nil || !mirrorsFit(fs) {
		return sw(ntag424.SWParameterErr)
	}
	t.settings = fs
	t.image = nil
	return t.sealOK()
}

// mirrorsFit reports whether every mirror lands inside the file.
func mirrorsFit(fs *ntag424.FileSettings) bool {
	if !fs.SDMEnabled() {
		return true
	}
	fits := func(off uint32, n int) bool { return int(off)+n <= fs.Size }
	if fs.SDMMeta < 5 && !fits(fs.PICCDataOffset, 32) {
		return false
	}
	if fs.SDMMeta == ntag424.AccessFree {
		if fs.SDMOptions&ntag424.SDMUIDMirror != 0 && !fits(fs.UIDOffset, 14) {
			return false
		}
		if fs.SDMOptions&ntag424.SDMReadCtr != 0 && !fits(fs.CtrOffset, 6) {
			return false
		}
	}
	if fs.SDMFile < 5 && (fs.MACInputOffset > fs.MACOffset || !fits(fs.MACOffset, 16)) {
		return false
	}
	return true
}

func (t *Tag) changeKey(body []byte) []byte {
	header, plain, status := t.openSecure(ntag424.InsChangeKey, body, 1)
	if status != ntag424.SWDESFireOK {
		return sw(status)
	}
	slot := header[0]
	if int(slot) >= len(t.Keys) {
		return sw(ntag424.SWParameterErr)
	}
	if t.authKey != 0 {
		return sw(ntag424.SWPermDenied)
	}

	if slot == t.authKey {
		if len(plain) < 17 {
			return sw(ntag424.SWLengthError)
		}
		t.Keys[slot] = append([]byte{}, plain[:16]...)
		t.KeyVersions[slot] = plain[16]
		t.resetAuth()
		return sw(ntag424.SWDESFireOK)
	}

	if len(plain) < 21 {
		return sw(ntag424.SWLengthError)
	}
	newKey, err := ntag424.Xor(plain[:16], t.Keys[slot])
	if err != nil {
		return sw(0x91CA)
	}
	if !bytes.Equal(plain[17:21], ntag424.JamCRC32(newKey)) {
		return sw(ntag424.SWIntegrityErr)
	}
	t.Keys[slot] = newKey
	t.KeyVersions[slot] = plain[16]
	return t.sealOK()
}
