package ntag424

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skythen/apdu"
)

// Card abstracts card transmit behavior for real PC/SC cards and test doubles.
// It is the only boundary between the protocol and the physical reader.
type Card interface {
	Transmit(apdu []byte) ([]byte, error)
}

// ParseResponse splits a raw reader response into data and status word.
func ParseResponse(raw []byte) (apdu.Rapdu, error) {
	if len(raw) < 2 {
		return apdu.Rapdu{}, fmt.Errorf("short response: %d bytes", len(raw))
	}
	data := make([]byte, len(raw)-2)
	copy(data, raw)
	return apdu.Rapdu{Data: data, SW1: raw[len(raw)-2], SW2: raw[len(raw)-1]}, nil
}

// SW returns the 16-bit status word of a response.
func SW(r apdu.Rapdu) uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// Exchange transmits one command and returns the parsed response.
func Exchange(card Card, cmd []byte) (apdu.Rapdu, error) {
	slog.Debug("apdu >>", "cmd", upperHex(cmd))
	raw, err := card.Transmit(cmd)
	if err != nil {
		return apdu.Rapdu{}, err
	}
	slog.Debug("apdu <<", "resp", upperHex(raw))
	return ParseResponse(raw)
}

// Transmit sends an APDU to the card and extracts the status word.
// Returns (response_data, status_word, error).
// The response data does NOT include the trailing SW bytes.
func Transmit(card Card, cmd []byte) ([]byte, uint16, error) {
	r, err := Exchange(card, cmd)
	if err != nil {
		return nil, 0, err
	}
	return r.Data, SW(r), nil
}

// GetUID retrieves the card UID via the PC/SC GET DATA pseudo-APDU.
// Some readers only answer when Le names the 7-byte UID length.
func GetUID(card Card) ([]byte, error) {
	for _, ne := range []int{0, 7} {
		data, sw, err := Transmit(card, GetDataUIDCommand(ne))
		if err == nil && sw == SWSuccess && len(data) > 0 {
			return data, nil
		}
	}
	return nil, fmt.Errorf("UID not available via GET DATA")
}

func upperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
