package ntag424

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// NDEF record header bits.
const (
	ndefMB      byte = 0x80
	ndefME      byte = 0x40
	ndefSR      byte = 0x10
	ndefIL      byte = 0x08
	ndefTNFMask byte = 0x07
	tnfWellKnown     = 0x01
	uriRecordType    = 'U'
)

// URIRecordHeaderLen is the number of bytes in front of the URI text in an
// NDEF file holding a single short URI record with no abbreviation:
// NLEN(2) D1 01 len 55 00.
const URIRecordHeaderLen = 7

// uriPrefixes is the NFC Forum URI identifier code table.
var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

// URIRecord encodes a single short well-known URI record (MB, ME and SR set)
// with the given identifier code. Code 0x00 stores uri verbatim.
func URIRecord(uri string, code byte) ([]byte, error) {
	payloadLen := 1 + len(uri)
	if payloadLen > 0xFF {
		return nil, fmt.Errorf("URI too long for short record: %d bytes", len(uri))
	}
	rec := make([]byte, 0, 4+payloadLen)
	rec = append(rec, ndefMB|ndefME|ndefSR|tnfWellKnown, 0x01, byte(payloadLen), uriRecordType, code)
	return append(rec, uri...), nil
}

// NewURIMessage builds the NDEF file content for uri: NLEN(2, big endian)
// followed by one URI record without abbreviation.
func NewURIMessage(uri string) ([]byte, error) {
	rec, err := URIRecord(uri, 0x00)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2, 2+len(rec))
	binary.BigEndian.PutUint16(out, uint16(len(rec)))
	return append(out, rec...), nil
}

// ParseURIMessage decodes the first record of an NDEF message (without the
// NLEN header) as a URI and expands its identifier code.
func ParseURIMessage(msg []byte) (string, error) {
	if len(msg) < 3 {
		return "", &DecodeError{What: "NDEF record", Got: len(msg), Want: 3}
	}
	hdr := msg[0]
	typeLen := int(msg[1])
	idx := 2

	var payloadLen int
	if hdr&ndefSR != 0 {
		payloadLen = int(msg[idx])
		idx++
	} else {
		if len(msg) < idx+4 {
			return "", &DecodeError{What: "NDEF payload length", Got: len(msg), Want: idx + 4}
		}
		payloadLen = int(binary.BigEndian.Uint32(msg[idx : idx+4]))
		idx += 4
	}
	idLen := 0
	if hdr&ndefIL != 0 {
		if len(msg) <= idx {
			return "", &DecodeError{What: "NDEF id length", Got: len(msg), Want: idx + 1}
		}
		idLen = int(msg[idx])
		idx++
	}
	if len(msg) < idx+typeLen+idLen+payloadLen {
		return "", &DecodeError{What: "NDEF record", Got: len(msg), Want: idx + typeLen + idLen + payloadLen}
	}
	recType := msg[idx : idx+typeLen]
	idx += typeLen + idLen
	payload := msg[idx : idx+payloadLen]

	if hdr&ndefTNFMask != tnfWellKnown || len(recType) != 1 || recType[0] != uriRecordType {
		return "", fmt.Errorf("first NDEF record is not a URI (TNF %d, type %q)", hdr&ndefTNFMask, recType)
	}
	if len(payload) == 0 {
		return "", &DecodeError{What: "URI payload", Got: 0, Want: 1}
	}

	var b strings.Builder
	if code := int(payload[0]); code < len(uriPrefixes) {
		b.WriteString(uriPrefixes[code])
	}
	b.Write(payload[1:])
	return b.String(), nil
}

// ReadURI reads the NDEF file and decodes its first URI record.
func ReadURI(card Card) (string, error) {
	msg, err := ReadNDEF(card)
	if err != nil {
		return "", err
	}
	return ParseURIMessage(msg)
}
