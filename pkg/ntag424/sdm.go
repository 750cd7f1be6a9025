package ntag424

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// PICCDataTag is the first plaintext byte of encrypted PICC data when both
// the UID (7 bytes) and the read counter are mirrored.
const PICCDataTag byte = 0xC7

// PICCData is the decrypted content of the p= mirror.
type PICCData struct {
	UID     []byte // 7-byte UID
	Counter uint32 // SDM read counter
}

// DeriveSDMSessionKey derives the SDM MAC session key from a base key, UID, and read counter.
//
// SV2 derivation:
//
//	SV2 = 3C C3 00 01 00 80 || UID(7) || Counter_LE(3)
//	SDMSessionKey = AES-CMAC(baseKey, SV2)
func DeriveSDMSessionKey(baseKey, uid []byte, counter uint32) ([]byte, error) {
	if len(baseKey) != 16 {
		return nil, fmt.Errorf("base key must be 16 bytes, got %d", len(baseKey))
	}
	if len(uid) != 7 {
		return nil, fmt.Errorf("UID must be 7 bytes, got %d", len(uid))
	}
	if counter > 0xFFFFFF {
		return nil, fmt.Errorf("counter must be <= 0xFFFFFF, got %d", counter)
	}

	sv2 := make([]byte, 0, 16)
	sv2 = append(sv2, 0x3C, 0xC3, 0x00, 0x01, 0x00, 0x80)
	sv2 = append(sv2, uid...)
	sv2 = append(sv2, u24le(counter)...)
	return aesCMAC(baseKey, sv2)
}

// DecryptPICCData decrypts the 16-byte p= mirror with the meta read key.
func DecryptPICCData(metaKey, enc []byte) (PICCData, error) {
	if len(enc) != 16 {
		return PICCData{}, &DecodeError{What: "PICC data", Got: len(enc), Want: 16}
	}
	plain, err := DecryptCBC(metaKey, nil, enc)
	if err != nil {
		return PICCData{}, err
	}
	if plain[0] != PICCDataTag {
		return PICCData{}, fmt.Errorf("PICC data tag 0x%02X, want 0x%02X (wrong key?)", plain[0], PICCDataTag)
	}
	return PICCData{UID: clone(plain[1:8]), Counter: readU24le(plain, 8)}, nil
}

// EncryptPICCData produces the p= mirror the way the tag does. The five
// trailing filler bytes are zero.
func EncryptPICCData(metaKey, uid []byte, counter uint32) ([]byte, error) {
	if len(uid) != 7 {
		return nil, fmt.Errorf("UID must be 7 bytes, got %d", len(uid))
	}
	plain := make([]byte, 16)
	plain[0] = PICCDataTag
	copy(plain[1:8], uid)
	putU24le(plain[8:11], counter)
	return EncryptCBC(metaKey, nil, plain)
}

// SUNMAC computes the 8-byte SDM MAC over macInput. When the MAC input offset
// equals the MAC offset, as on a bolt card, macInput is empty.
func SUNMAC(fileKey, uid []byte, counter uint32, macInput []byte) ([]byte, error) {
	sk, err := DeriveSDMSessionKey(fileKey, uid, counter)
	if err != nil {
		return nil, fmt.Errorf("session key derive: %v", err)
	}
	return CMACShort(sk, macInput)
}

// ParseSUNURL extracts the p and c mirrors from a tapped URL. Parameters
// named p and c are used when both are present; otherwise the mirrors are the
// only query values that are 32 and 16 hex characters long.
func ParseSUNURL(rawURL string) (p, c []byte, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	pHex, cHex := q.Get("p"), q.Get("c")
	if len(pHex) != 32 || len(cHex) != 16 {
		pHex, cHex = "", ""
		for _, values := range q {
			for _, v := range values {
				if !isHex(v) {
					continue
				}
				switch {
				case len(v) == 32 && pHex == "":
					pHex = v
				case len(v) == 32:
					return nil, nil, fmt.Errorf("more than one 32-char hex parameter")
				case len(v) == 16 && cHex == "":
					cHex = v
				case len(v) == 16:
					return nil, nil, fmt.Errorf("more than one 16-char hex parameter")
				}
			}
		}
	}
	if len(pHex) != 32 || len(cHex) != 16 {
		return nil, nil, fmt.Errorf("invalid parameter lengths: p=%d c=%d (want 32,16)", len(pHex), len(cHex))
	}
	if p, err = hex.DecodeString(pHex); err != nil {
		return nil, nil, fmt.Errorf("p hex decode: %v", err)
	}
	if c, err = hex.DecodeString(cHex); err != nil {
		return nil, nil, fmt.Errorf("c hex decode: %v", err)
	}
	return p, c, nil
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// VerifySUN checks the mirrors of a tapped URL against the meta and file
// read keys. It returns the decoded PICC data and whether the MAC matched.
func VerifySUN(rawURL string, metaKey, fileKey []byte) (PICCData, bool, error) {
	p, c, err := ParseSUNURL(rawURL)
	if err != nil {
		return PICCData{}, false, err
	}
	return VerifySUNMirrors(p, c, metaKey, fileKey)
}

// VerifySUNMirrors decrypts the p mirror and checks the c mirror against it.
func VerifySUNMirrors(p, c, metaKey, fileKey []byte) (PICCData, bool, error) {
	picc, err := DecryptPICCData(metaKey, p)
	if err != nil {
		return PICCData{}, false, err
	}
	want, err := SUNMAC(fileKey, picc.UID, picc.Counter, nil)
	if err != nil {
		return picc, false, err
	}
	return picc, bytes.Equal(want, c), nil
}

// MirrorHex is the upper-case ASCII form the tag writes into NDEF data.
func MirrorHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
