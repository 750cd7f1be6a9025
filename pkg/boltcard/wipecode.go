package boltcard

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// WipeCode is the JSON document printed for a provisioned card. Feeding it
// back to the wipe tool resets the card.
type WipeCode struct {
	Action  string `json:"action"`
	K0      string `json:"k0"`
	K1      string `json:"k1"`
	K2      string `json:"k2"`
	K3      string `json:"k3"`
	K4      string `json:"k4"`
	UID     string `json:"uid,omitempty"`
	Version int    `json:"version"`
}

// NewWipeCode builds the wipe code for a card holding keys.
func NewWipeCode(uid []byte, keys [][]byte, version byte) (WipeCode, error) {
	if err := validateKeys(keys); err != nil {
		return WipeCode{}, err
	}
	enc := func(b []byte) string { return strings.ToUpper(hex.EncodeToString(b)) }
	return WipeCode{
		Action:  "wipe",
		K0:      enc(keys[0]),
		K1:      enc(keys[1]),
		K2:      enc(keys[2]),
		K3:      enc(keys[3]),
		K4:      enc(keys[4]),
		UID:     enc(uid),
		Version: int(version),
	}, nil
}

// ParseWipeCode decodes a wipe code document.
func ParseWipeCode(data []byte) (WipeCode, error) {
	var wc WipeCode
	if err := json.Unmarshal(data, &wc); err != nil {
		return WipeCode{}, errors.Wrap(err, "parse wipe code")
	}
	if wc.Action != "wipe" {
		return WipeCode{}, errors.Errorf("wipe code action %q, want \"wipe\"", wc.Action)
	}
	if _, err := wc.Keys(); err != nil {
		return WipeCode{}, err
	}
	return wc, nil
}

// Keys decodes the five keys of the wipe code.
func (wc WipeCode) Keys() ([][]byte, error) {
	keys := make([][]byte, 0, KeyCount)
	for i, s := range []string{wc.K0, wc.K1, wc.K2, wc.K3, wc.K4} {
		k, err := hex.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, errors.Wrapf(err, "k%d", i)
		}
		if len(k) != 16 {
			return nil, errors.Wrapf(ErrKeyLength, "k%d is %d bytes", i, len(k))
		}
		keys = append(keys, k)
	}
	return keys, nil
}
