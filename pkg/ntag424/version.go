package ntag424

import (
	"encoding/binary"
	"fmt"
)

// VersionLen is the length of the concatenated three-part GetVersion reply.
const VersionLen = 28

// TagVersion holds the hardware and software version information from GetVersion.
type TagVersion struct {
	HWVendorID    byte   // Hardware vendor ID
	HWType        byte   // Hardware type
	HWSubType     byte   // Hardware subtype
	HWMajorVer    byte   // Hardware major version
	HWMinorVer    byte   // Hardware minor version
	HWStorageSize byte   // Hardware storage size
	HWProtocol    byte   // Hardware protocol
	SWVendorID    byte   // Software vendor ID
	SWType        byte   // Software type
	SWSubType     byte   // Software subtype
	SWMajorVer    byte   // Software major version
	SWMinorVer    byte   // Software minor version
	SWStorageSize byte   // Software storage size
	SWProtocol    byte   // Software protocol
	UID           []byte // 7-byte UID
	BatchNo       uint32 // Batch number
	FabKey        byte   // Fabrication key
	ProdWeek      byte   // Calendar week of production (BCD)
	ProdYear      byte   // Year of production (BCD)
}

// ParseVersion decodes the 28-byte concatenated GetVersion reply.
func ParseVersion(data []byte) (*TagVersion, error) {
	if len(data) != VersionLen {
		return nil, &DecodeError{What: "version", Got: len(data), Want: VersionLen}
	}
	return &TagVersion{
		HWVendorID:    data[0],
		HWType:        data[1],
		HWSubType:     data[2],
		HWMajorVer:    data[3],
		HWMinorVer:    data[4],
		HWStorageSize: data[5],
		HWProtocol:    data[6],
		SWVendorID:    data[7],
		SWType:        data[8],
		SWSubType:     data[9],
		SWMajorVer:    data[10],
		SWMinorVer:    data[11],
		SWStorageSize: data[12],
		SWProtocol:    data[13],
		UID:           clone(data[14:21]),
		BatchNo:       binary.BigEndian.Uint32(data[21:25]),
		FabKey:        data[25],
		ProdWeek:      data[26],
		ProdYear:      data[27],
	}, nil
}

// GetVersion retrieves the tag version information using DESFire GetVersion (INS 0x60).
// This is a three-part command exchange at PICC level.
func GetVersion(card Card) (*TagVersion, error) {
	raw, err := GetVersionRaw(card)
	if err != nil {
		return nil, err
	}
	return ParseVersion(raw)
}

// GetVersionRaw runs the GetVersion exchange and returns the concatenated
// reply without decoding it.
func GetVersionRaw(card Card) ([]byte, error) {
	parts := []struct {
		ins  byte
		want uint16
	}{
		{InsGetVersion, SWMoreData},
		{InsAdditionalFrame, SWMoreData},
		{InsAdditionalFrame, SWDESFireOK},
	}
	out := make([]byte, 0, VersionLen)
	for i, p := range parts {
		r, err := Exchange(card, NativeCommand(p.ins, nil))
		if err != nil {
			return nil, err
		}
		if sw := SW(r); sw != p.want {
			return nil, fmt.Errorf("GetVersion part %d failed: %w", i+1, &SWError{Cmd: p.ins, SW: sw})
		}
		out = append(out, r.Data...)
	}
	return out, nil
}
