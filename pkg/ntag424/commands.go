package ntag424

import (
	"github.com/skythen/apdu"
)

// Fixed identifiers of the NTAG 424 DNA NDEF application.
var (
	NDEFAppAID        = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}
	NDEFFileID uint16 = 0xE104
)

// FileNDEF is the file number of the NDEF file inside the application.
const FileNDEF byte = 0x02

// DESFire native instruction bytes used by this package.
const (
	InsAuthFirst          byte = 0x71
	InsAdditionalFrame    byte = 0xAF
	InsGetVersion         byte = 0x60
	InsChangeFileSettings byte = 0x5F
	InsChangeKey          byte = 0xC4
	InsGetFileSettings    byte = 0xF5
	InsWriteData          byte = 0x3D
)

// SelectAppCommand selects the NDEF application by DF name.
// Encodes to 00A4040007D276000085010100.
func SelectAppCommand() []byte {
	return apdu.Capdu{
		Cla:  0x00,
		Ins:  0xA4,
		P1:   0x04,
		P2:   0x00,
		Data: NDEFAppAID,
		Ne:   apdu.MaxLenResponseDataStandard,
	}.Bytes()
}

// SelectFileCommand selects an elementary file by its 16-bit ID.
// For the NDEF file this encodes to 00A4000002E10400.
func SelectFileCommand(fileID uint16) []byte {
	return apdu.Capdu{
		Cla:  0x00,
		Ins:  0xA4,
		P1:   0x00,
		P2:   0x00,
		Data: []byte{byte(fileID >> 8), byte(fileID)},
		Ne:   apdu.MaxLenResponseDataStandard,
	}.Bytes()
}

// UpdateBinaryCommands splits data into ISO UPDATE BINARY commands of at most
// 255 data bytes each, starting at offset in the currently selected file.
func UpdateBinaryCommands(offset int, data []byte) [][]byte {
	var cmds [][]byte
	for written := 0; written < len(data); {
		chunk := len(data) - written
		if chunk > 0xFF {
			chunk = 0xFF
		}
		pos := offset + written
		cmds = append(cmds, apdu.Capdu{
			Cla:  0x00,
			Ins:  0xD6,
			P1:   byte(pos >> 8),
			P2:   byte(pos),
			Data: data[written : written+chunk],
		}.Bytes())
		written += chunk
	}
	return cmds
}

// ReadBinaryCommand reads length bytes (0 means 256) at offset of the
// currently selected file.
func ReadBinaryCommand(offset, length int) []byte {
	ne := length
	if ne <= 0 {
		ne = apdu.MaxLenResponseDataStandard
	}
	return apdu.Capdu{
		Cla: 0x00,
		Ins: 0xB0,
		P1:  byte(offset >> 8),
		P2:  byte(offset),
		Ne:  ne,
	}.Bytes()
}

// GetDataUIDCommand is the PC/SC pseudo-APDU returning the card UID.
// An ne of 0 sends Le 00.
func GetDataUIDCommand(ne int) []byte {
	if ne <= 0 {
		ne = apdu.MaxLenResponseDataStandard
	}
	return apdu.Capdu{Cla: 0xFF, Ins: 0xCA, Ne: ne}.Bytes()
}

// NativeCommand wraps a DESFire native command in an ISO 7816 envelope
// (CLA 0x90) with a trailing Le of 0x00.
func NativeCommand(ins byte, data []byte) []byte {
	return apdu.Capdu{
		Cla:  0x90,
		Ins:  ins,
		Data: data,
		Ne:   apdu.MaxLenResponseDataStandard,
	}.Bytes()
}

// AuthFirstCommand starts EV2First authentication for keyNo.
// For key 0 this encodes to 9071000005000300000000.
func AuthFirstCommand(keyNo byte) []byte {
	// keyNo, LenCap=3, PCDcap2 all zero
	return NativeCommand(InsAuthFirst, []byte{keyNo, 0x03, 0x00, 0x00, 0x00})
}
