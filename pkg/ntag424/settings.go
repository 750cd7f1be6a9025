package ntag424

import (
	"fmt"
	"log/slog"
)

// Access condition nibbles.
const (
	AccessKey0 byte = 0x0
	AccessKey1 byte = 0x1
	AccessKey2 byte = 0x2
	AccessFree byte = 0xE
	AccessNone byte = 0xF
)

// SDM option bits.
const (
	SDMUIDMirror    byte = 0x80
	SDMReadCtr      byte = 0x40
	SDMReadCtrLimit byte = 0x20
	SDMENCFileData  byte = 0x10
	SDMASCII        byte = 0x01
)

// FileSettings represents the complete file settings structure.
type FileSettings struct {
	FileType   byte   // 0x00 = standard data file
	FileOption byte   // bit 6 = SDM enabled, bits 1:0 = comm mode
	AR1        byte   // [ReadWrite nibble | ChangeAccessRights nibble]
	AR2        byte   // [Read nibble | Write nibble]
	Size       int    // File size in bytes (3-byte LE)
	SDMOptions byte   // SDM options (bit 7=UID, bit 6=Ctr, bit 0=ASCII)
	SDMMeta    byte   // Meta read access (upper nibble of SDMAR)
	SDMFile    byte   // File read access (bits 11:8 of SDMAR)
	SDMCtr     byte   // Counter retrieval access (lower nibble of SDMAR)
	RawData    []byte // Raw response

	// Conditional SDM offset fields (present depending on SDMOptions/SDMAR)
	UIDOffset      uint32 // UID mirror offset (if bit7=1 and Meta=0xE)
	CtrOffset      uint32 // Counter mirror offset (if bit6=1 and Meta=0xE)
	PICCDataOffset uint32 // Encrypted PICC data offset (if Meta is a key)
	MACInputOffset uint32 // MAC input offset (if File != 0xF)
	MACOffset      uint32 // MAC offset (if File != 0xF)
	ENCOffset      uint32 // ENC offset (if bit4=1)
	ENCLength      uint32 // ENC length (if bit4=1)
	CtrLimit       uint32 // Counter limit (if bit5=1)
}

// SDMEnabled reports whether secure dynamic messaging is on.
func (fs FileSettings) SDMEnabled() bool {
	return fs.FileOption&0x40 != 0
}

// ParseFileSettings parses the raw GetFileSettings response.
func ParseFileSettings(data []byte) (*FileSettings, error) {
	if len(data) < 7 {
		return nil, &DecodeError{What: "file settings", Got: len(data), Want: 7}
	}
	fs := &FileSettings{}
	fs.FileType = data[0]
	fs.FileOption = data[1]
	fs.AR1 = data[2]
	fs.AR2 = data[3]
	fs.Size = int(readU24le(data, 4))
	fs.RawData = clone(data)

	idx := 7
	if !fs.SDMEnabled() {
		return fs, nil
	}

	need := func(n int, what string) error {
		if len(data) < idx+n {
			return &DecodeError{What: "file settings " + what, Got: len(data), Want: idx + n}
		}
		return nil
	}

	if err := need(3, "SDM fields"); err != nil {
		return nil, err
	}
	fs.SDMOptions = data[idx]
	sdmAR := uint16(data[idx+1]) | (uint16(data[idx+2]) << 8)
	fs.SDMMeta = byte((sdmAR >> 12) & 0x0F)
	fs.SDMFile = byte((sdmAR >> 8) & 0x0F)
	fs.SDMCtr = byte(sdmAR & 0x0F)
	idx += 3

	if fs.SDMOptions&SDMUIDMirror != 0 && fs.SDMMeta == AccessFree {
		if err := need(3, "UIDOffset"); err != nil {
			return nil, err
		}
		fs.UIDOffset = readU24le(data, idx)
		idx += 3
	}
	if fs.SDMOptions&SDMReadCtr != 0 && fs.SDMMeta == AccessFree {
		if err := need(3, "CtrOffset"); err != nil {
			return nil, err
		}
		fs.CtrOffset = readU24le(data, idx)
		idx += 3
	}
	if fs.SDMMeta != AccessFree && fs.SDMMeta != AccessNone {
		if err := need(3, "PICCDataOffset"); err != nil {
			return nil, err
		}
		fs.PICCDataOffset = readU24le(data, idx)
		idx += 3
	}
	if fs.SDMFile != AccessNone {
		if err := need(6, "MAC offsets"); err != nil {
			return nil, err
		}
		fs.MACInputOffset = readU24le(data, idx)
		fs.MACOffset = readU24le(data, idx+3)
		idx += 6
	}
	if fs.SDMOptions&SDMENCFileData != 0 {
		if err := need(6, "ENC offsets"); err != nil {
			return nil, err
		}
		fs.ENCOffset = readU24le(data, idx)
		fs.ENCLength = readU24le(data, idx+3)
		idx += 6
	}
	if fs.SDMOptions&SDMReadCtrLimit != 0 {
		if err := need(3, "CtrLimit"); err != nil {
			return nil, err
		}
		fs.CtrLimit = readU24le(data, idx)
	}
	return fs, nil
}

// SDMConfig is the SDM part of a ChangeFileSettings payload.
type SDMConfig struct {
	Options        byte
	Meta           byte
	File           byte
	Ctr            byte
	UIDOffset      uint32
	CtrOffset      uint32
	PICCDataOffset uint32
	MACInputOffset uint32
	MACOffset      uint32
}

// BuildChangeFileSettingsData constructs the ChangeFileSettings data payload.
// A nil sdm produces the three byte form that turns mirroring off.
func BuildChangeFileSettingsData(commMode, ar1, ar2 byte, sdm *SDMConfig) []byte {
	fileOption := commMode & 0x03
	if sdm == nil || sdm.Options == 0 {
		return []byte{fileOption, ar1, ar2}
	}

	data := make([]byte, 0, 32)
	data = append(data, fileOption|0x40, ar1, ar2, sdm.Options)

	// SDMAR: [Meta(15:12) | File(11:8) | RFU(7:4) | Ctr(3:0)]
	sdmAR := uint16(sdm.Meta&0x0F)<<12 | uint16(sdm.File&0x0F)<<8 | 0x0F<<4 | uint16(sdm.Ctr&0x0F)
	data = append(data, byte(sdmAR), byte(sdmAR>>8))

	// Conditional offsets (must match tag's encoding rules)
	if sdm.Options&SDMUIDMirror != 0 && sdm.Meta == AccessFree {
		data = append(data, u24le(sdm.UIDOffset)...)
	}
	if sdm.Options&SDMReadCtr != 0 && sdm.Meta == AccessFree {
		data = append(data, u24le(sdm.CtrOffset)...)
	}
	if sdm.Meta != AccessFree && sdm.Meta != AccessNone {
		data = append(data, u24le(sdm.PICCDataOffset)...)
	}
	if sdm.File != AccessNone {
		data = append(data, u24le(sdm.MACInputOffset)...)
		data = append(data, u24le(sdm.MACOffset)...)
	}
	return data
}

// ChangeFileSettingsCommand builds the secure ChangeFileSettings (INS 0x5F)
// command for fileNo.
func ChangeFileSettingsCommand(s Session, fileNo byte, data []byte) (Session, []byte, error) {
	return BuildSecureCommand(s, InsChangeFileSettings, []byte{fileNo}, data)
}

// ChangeFileSettings sends ChangeFileSettings over card and verifies the reply.
func ChangeFileSettings(card Card, s Session, fileNo byte, data []byte) (Session, error) {
	next, _, err := SsmCmdFull(card, s, InsChangeFileSettings, []byte{fileNo}, data)
	return next, err
}

// GetFileSettings retrieves file settings with a plain GetFileSettings.
// The NDEF application must be selected.
func GetFileSettings(card Card, fileNo byte) (*FileSettings, error) {
	r, err := Exchange(card, NativeCommand(InsGetFileSettings, []byte{fileNo}))
	if err != nil {
		return nil, err
	}
	sw := SW(r)
	slog.Debug("GetFileSettings",
		"file_no", fmt.Sprintf("%02X", fileNo),
		"sw", fmt.Sprintf("%04X", sw),
		"resp_len", len(r.Data))
	if !SwOK(sw) {
		return nil, &SWError{Cmd: InsGetFileSettings, SW: sw}
	}
	return ParseFileSettings(r.Data)
}
