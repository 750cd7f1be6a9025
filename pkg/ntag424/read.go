package ntag424

import (
	"fmt"
	"log/slog"
)

// CCFileID is the capability container file of the NDEF application.
const CCFileID uint16 = 0xE103

// shortReadChunk is the READ BINARY size used after a reader rejects 255.
const shortReadChunk = 0x3B

// ReadBinary reads data from the currently selected file using ISO 7816 READ BINARY (INS 0xB0).
// Automatically retries with correct Le if the tag returns SW=6Cxx (wrong Le).
// A length of 0 asks for up to 256 bytes.
//
// READ BINARY cannot use DESFire secure messaging; the file must allow free read.
func ReadBinary(card Card, offset uint16, length int) ([]byte, error) {
	r, err := Exchange(card, ReadBinaryCommand(int(offset), length))
	if err != nil {
		return nil, err
	}

	sw := SW(r)
	if (sw & 0xFF00) == SWWrongLe {
		correct := int(sw & 0x00FF)
		slog.Warn("wrong Le, retrying", "original_le", length, "correct_le", correct)
		if r, err = Exchange(card, ReadBinaryCommand(int(offset), correct)); err != nil {
			return nil, err
		}
		sw = SW(r)
	}

	if sw != SWSuccess {
		return nil, &SWError{Cmd: 0xB0, SW: sw}
	}
	return r.Data, nil
}

// ReadNDEF reads the complete NDEF message from File 2 using ISO READ BINARY.
//
// Steps:
//  1. Select NDEF application (AID D2760000850101)
//  2. Select CC file (0xE103) and read to get NDEF file ID
//  3. Select NDEF file (typically 0xE104)
//  4. Read NLEN (2-byte big-endian length header)
//  5. Read NDEF message in 255-byte chunks
//
// The returned message does not include the NLEN header.
func ReadNDEF(card Card) ([]byte, error) {
	cc, err := ReadCCFile(card)
	if err != nil {
		return nil, err
	}
	if len(cc) < 15 {
		return nil, &DecodeError{What: "CC file", Got: len(cc), Want: 15}
	}

	// NDEF file control TLV carries the file ID
	fileID := NDEFFileID
	if cc[7] == 0x04 && cc[8] >= 6 {
		fileID = uint16(cc[9])<<8 | uint16(cc[10])
	}
	if err := SelectFile(card, fileID); err != nil {
		return nil, err
	}

	nlenBytes, err := ReadBinary(card, 0x0000, 2)
	if err != nil {
		return nil, err
	}
	if len(nlenBytes) < 2 {
		return nil, fmt.Errorf("NLEN read too short")
	}
	nlen := int(nlenBytes[0])<<8 | int(nlenBytes[1])
	if nlen == 0 {
		return []byte{}, nil
	}

	ndef := make([]byte, 0, nlen)
	offset := 2
	remaining := nlen
	maxChunk := 0xFF
	for remaining > 0 {
		chunk := min(remaining, maxChunk)
		part, err := ReadBinary(card, uint16(offset), chunk)
		switch {
		case IsLengthError(err) && maxChunk > shortReadChunk:
			// Some readers cannot carry a full short APDU response.
			slog.Warn("read length rejected, using short chunks", "le", chunk, "short", shortReadChunk)
			maxChunk = shortReadChunk
			continue
		case IsBoundaryError(err):
			slog.Warn("NLEN runs past end of file", "nlen", nlen, "offset", offset)
			return ndef, nil
		case err != nil:
			return nil, err
		}
		if len(part) == 0 {
			break
		}
		if len(part) > remaining {
			part = part[:remaining]
		}
		ndef = append(ndef, part...)
		offset += len(part)
		remaining -= len(part)
	}
	return ndef, nil
}

// ReadCCFile selects the NDEF application and reads the Capability
// Container (CC) file.
func ReadCCFile(card Card) ([]byte, error) {
	if err := SelectNDEFApp(card); err != nil {
		return nil, err
	}
	if err := SelectFile(card, CCFileID); err != nil {
		return nil, err
	}
	return ReadBinary(card, 0x0000, 0x0F)
}
