package boltcard

import (
	"github.com/pkg/errors"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

// ResetPICC returns the secure ChangeFileSettings command that turns
// mirroring off and makes the NDEF file freely readable and writable again.
func ResetPICC(s ntag424.Session) (ntag424.Session, [][]byte, error) {
	data := ntag424.BuildChangeFileSettingsData(0x00, 0xE0, 0xEE, nil)
	next, cmd, err := ntag424.ChangeFileSettingsCommand(s, ntag424.FileNDEF, data)
	if err != nil {
		return s, nil, errors.Wrap(err, "reset PICC")
	}
	return next, [][]byte{cmd}, nil
}

// RestoreKeys returns one ChangeKey command per slot, 4 down to 0, moving
// every slot from current back to the all-zero factory key.
func RestoreKeys(s ntag424.Session, current [][]byte, version byte) (ntag424.Session, [][]byte, error) {
	if err := validateKeys(current); err != nil {
		return s, nil, err
	}
	return changeKeys(s, factoryKeys(), current, version)
}

// ClearNDEF returns the APDUs that empty the NDEF file by writing NLEN = 0.
// It needs no authentication once ResetPICC has made the file free to write.
func ClearNDEF() [][]byte {
	apdus := [][]byte{ntag424.SelectAppCommand(), ntag424.SelectFileCommand(ntag424.NDEFFileID)}
	return append(apdus, ntag424.UpdateBinaryCommands(0, []byte{0x00, 0x00})...)
}
