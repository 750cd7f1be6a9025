// Package boltcard provisions ("burns") and factory-resets ("wipes")
// NTAG 424 DNA tags as bolt cards.
//
// The step functions in this package do no I/O. Each takes the current
// ntag424.Session and the tag's last reply and returns the next session
// together with the APDUs to send. Burn and Wipe run the steps over an
// ntag424.Card.
//
// Wipe authenticates with the same AuthChallenge, AuthResponse and
// AuthFinalize steps as burn, with the card's current key 0 in the session.
package boltcard

import (
	"github.com/pkg/errors"
	"github.com/skythen/apdu"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

// KeyCount is the number of application keys on the tag.
const KeyCount = 5

// DefaultKeyVersion is written with every key change.
const DefaultKeyVersion byte = 0x01

// WriteURL returns the APDUs that store the URL template as the tag's only
// NDEF record. No authentication is needed on a factory tag.
func WriteURL(url string) ([][]byte, error) {
	t, err := BuildURLTemplate(url)
	if err != nil {
		return nil, err
	}
	msg, err := ntag424.NewURIMessage(t.URL)
	if err != nil {
		return nil, errors.Wrap(err, "encode NDEF message")
	}
	apdus := [][]byte{ntag424.SelectAppCommand(), ntag424.SelectFileCommand(ntag424.NDEFFileID)}
	return append(apdus, ntag424.UpdateBinaryCommands(0, msg)...), nil
}

// AuthChallenge returns the APDUs that select the application and ask the
// tag for an EV2First challenge on key 0.
func AuthChallenge() [][]byte {
	return [][]byte{ntag424.SelectAppCommand(), ntag424.AuthFirstCommand(0)}
}

// AuthResponse answers the tag's challenge. The session key is the key
// believed to be in slot 0: all zero for burn, the current key for wipe.
func AuthResponse(s ntag424.Session, reply apdu.Rapdu) (ntag424.Session, [][]byte, error) {
	next, cmd, err := ntag424.AuthAnswer(s, reply)
	if err != nil {
		return s, nil, err
	}
	return next, [][]byte{cmd}, nil
}

// AuthFinalize checks the tag's last authentication reply and returns the
// authenticated session.
func AuthFinalize(s ntag424.Session, reply apdu.Rapdu) (ntag424.Session, error) {
	next, _, err := ntag424.AuthFinalize(s, reply)
	return next, err
}

// SDMConfig returns the mirror settings for a bolt card: encrypted PICC data
// under key 1, SUN MAC under key 2 over an empty input, counter not readable.
func SDMConfig(t URLTemplate) *ntag424.SDMConfig {
	return &ntag424.SDMConfig{
		Options:        ntag424.SDMUIDMirror | ntag424.SDMReadCtr | ntag424.SDMASCII,
		Meta:           ntag424.AccessKey1,
		File:           ntag424.AccessKey2,
		Ctr:            ntag424.AccessNone,
		PICCDataOffset: uint32(t.PICCOffset),
		MACInputOffset: uint32(t.CMACOffset),
		MACOffset:      uint32(t.CMACOffset),
	}
}

// ConfigurePICC returns the secure ChangeFileSettings command that turns on
// SUN mirroring at the template's offsets. Read stays free, write and
// settings changes need key 0.
func ConfigurePICC(s ntag424.Session, url string) (ntag424.Session, [][]byte, error) {
	t, err := BuildURLTemplate(url)
	if err != nil {
		return s, nil, err
	}
	data := ntag424.BuildChangeFileSettingsData(0x00, 0x00, 0xE0, SDMConfig(t))
	next, cmd, err := ntag424.ChangeFileSettingsCommand(s, ntag424.FileNDEF, data)
	if err != nil {
		return s, nil, errors.Wrap(err, "configure PICC")
	}
	return next, [][]byte{cmd}, nil
}

// ChangeKeys returns one ChangeKey command per slot, 4 down to 0, moving a
// factory tag to keys. The session counter advances once per command.
func ChangeKeys(s ntag424.Session, keys [][]byte, version byte) (ntag424.Session, [][]byte, error) {
	if err := validateKeys(keys); err != nil {
		return s, nil, err
	}
	return changeKeys(s, keys, factoryKeys(), version)
}

func changeKeys(s ntag424.Session, newKeys, oldKeys [][]byte, version byte) (ntag424.Session, [][]byte, error) {
	if !s.Authenticated() {
		return s, nil, ntag424.ErrNotAuthenticated
	}
	apdus := make([][]byte, 0, KeyCount)
	next := s
	for slot := KeyCount - 1; slot >= 0; slot-- {
		var cmd []byte
		var err error
		next, cmd, err = ntag424.ChangeKeyCommand(next, byte(slot), 0, newKeys[slot], oldKeys[slot], version)
		if err != nil {
			return s, nil, errors.Wrapf(err, "change key %d", slot)
		}
		apdus = append(apdus, cmd)
	}
	return next, apdus, nil
}

func validateKeys(keys [][]byte) error {
	if len(keys) != KeyCount {
		return errors.Wrapf(ErrKeyCount, "got %d", len(keys))
	}
	for i, k := range keys {
		if len(k) != 16 {
			return errors.Wrapf(ErrKeyLength, "key %d is %d bytes", i, len(k))
		}
	}
	return nil
}

func factoryKeys() [][]byte {
	keys := make([][]byte, KeyCount)
	for i := range keys {
		keys[i] = ntag424.DefaultKey
	}
	return keys
}
