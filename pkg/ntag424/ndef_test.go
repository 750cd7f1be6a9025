package ntag424

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestNewURIMessageLayout(t *testing.T) {
	url := "lnurlw://legend.lnbits.com/boltcards/api/v1/scan/q3cksam5j5d6guxuhearty?p=00000000000000000000000000000000&c=0000000000000000"
	msg, err := NewURIMessage(url)
	if err != nil {
		t.Fatalf("NewURIMessage returned error: %v", err)
	}
	header := mustHex(t, "0082D1017E5500")
	if !bytes.Equal(msg[:URIRecordHeaderLen], header) {
		t.Fatalf("header = %X, want %X", msg[:URIRecordHeaderLen], header)
	}
	if string(msg[URIRecordHeaderLen:]) != url {
		t.Fatalf("payload = %q", msg[URIRecordHeaderLen:])
	}
}

func TestParseURIMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"no abbreviation", "D1010855006C6E75726C773A", "lnurlw:"},
		{"https prefix", "D1010C5504" + hex.EncodeToString([]byte("example.com")), "https://example.com"},
		{"long record", "C101000000085500" + hex.EncodeToString([]byte("lnurlw:")), "lnurlw:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURIMessage(mustHex(t, tt.msg))
			if err != nil {
				t.Fatalf("ParseURIMessage returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("uri = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseURIMessageRejectsOtherRecords(t *testing.T) {
	// text record
	if _, err := ParseURIMessage(mustHex(t, "D101045402656E41")); err == nil || !strings.Contains(err.Error(), "not a URI") {
		t.Fatalf("expected not-a-URI error, got %v", err)
	}
	if _, err := ParseURIMessage(mustHex(t, "D1017E55")); err == nil {
		t.Fatal("expected error for truncated record")
	}
}

func TestNewURIMessageRoundTrip(t *testing.T) {
	url := "lnurlw://card.example.com/ln?p=00000000000000000000000000000000&c=0000000000000000"
	msg, err := NewURIMessage(url)
	if err != nil {
		t.Fatalf("NewURIMessage returned error: %v", err)
	}
	got, err := ParseURIMessage(msg[2:])
	if err != nil {
		t.Fatalf("ParseURIMessage returned error: %v", err)
	}
	if got != url {
		t.Fatalf("uri = %q", got)
	}
}

func TestUpdateBinaryCommandsChunking(t *testing.T) {
	cmds := UpdateBinaryCommands(0, make([]byte, 300))
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	if !bytes.Equal(cmds[0][:5], mustHex(t, "00D60000FF")) {
		t.Fatalf("first header = %X", cmds[0][:5])
	}
	if !bytes.Equal(cmds[1][:5], mustHex(t, "00D600FF2D")) {
		t.Fatalf("second header = %X", cmds[1][:5])
	}
	if len(cmds[1]) != 5+45 {
		t.Fatalf("second length = %d", len(cmds[1]))
	}
}

func TestSelectCommands(t *testing.T) {
	if got := SelectAppCommand(); !bytes.Equal(got, mustHex(t, "00A4040007D276000085010100")) {
		t.Fatalf("SelectAppCommand = %X", got)
	}
	if got := SelectFileCommand(NDEFFileID); !bytes.Equal(got, mustHex(t, "00A4000002E10400")) {
		t.Fatalf("SelectFileCommand = %X", got)
	}
	if got := ReadBinaryCommand(0, 0); !bytes.Equal(got, mustHex(t, "00B0000000")) {
		t.Fatalf("ReadBinaryCommand = %X", got)
	}
}

func TestReadURIOverCard(t *testing.T) {
	msg, err := NewURIMessage("lnurlw://x.io/ln")
	if err != nil {
		t.Fatalf("NewURIMessage returned error: %v", err)
	}
	cc := mustHex(t, "001720010000FF0406E10401000000")
	card := &scriptCard{t: t, steps: []scriptStep{
		{want: SelectAppCommand(), resp: mustHex(t, "9000")},
		{want: SelectFileCommand(CCFileID), resp: mustHex(t, "9000")},
		{want: mustHex(t, "00B000000F"), resp: append(cc, 0x90, 0x00)},
		{want: SelectFileCommand(NDEFFileID), resp: mustHex(t, "9000")},
		{want: mustHex(t, "00B0000002"), resp: append(append([]byte{}, msg[:2]...), 0x90, 0x00)},
		{want: ReadBinaryCommand(2, len(msg)-2), resp: append(append([]byte{}, msg[2:]...), 0x90, 0x00)},
	}}
	got, err := ReadURI(card)
	if err != nil {
		t.Fatalf("ReadURI returned error: %v", err)
	}
	if got != "lnurlw://x.io/ln" {
		t.Fatalf("uri = %q", got)
	}
}

func ndefPrefix(t *testing.T, nlen []byte) []scriptStep {
	cc := mustHex(t, "001720010000FF0406E10401000000")
	return []scriptStep{
		{want: SelectAppCommand(), resp: mustHex(t, "9000")},
		{want: SelectFileCommand(CCFileID), resp: mustHex(t, "9000")},
		{want: mustHex(t, "00B000000F"), resp: append(cc, 0x90, 0x00)},
		{want: SelectFileCommand(NDEFFileID), resp: mustHex(t, "9000")},
		{want: mustHex(t, "00B0000002"), resp: append(append([]byte{}, nlen...), 0x90, 0x00)},
	}
}

func TestReadNDEFFallsBackToShortChunks(t *testing.T) {
	msg, err := NewURIMessage("lnurlw://x.io/ln?" + strings.Repeat("k", 80))
	if err != nil {
		t.Fatalf("NewURIMessage returned error: %v", err)
	}
	body := msg[2:]
	steps := ndefPrefix(t, msg[:2])
	steps = append(steps,
		scriptStep{want: ReadBinaryCommand(2, len(body)), resp: mustHex(t, "6700")},
		scriptStep{want: ReadBinaryCommand(2, shortReadChunk), resp: append(append([]byte{}, body[:shortReadChunk]...), 0x90, 0x00)},
		scriptStep{want: ReadBinaryCommand(2+shortReadChunk, len(body)-shortReadChunk), resp: append(append([]byte{}, body[shortReadChunk:]...), 0x90, 0x00)},
	)
	card := &scriptCard{t: t, steps: steps}
	got, err := ReadNDEF(card)
	if err != nil {
		t.Fatalf("ReadNDEF returned error: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("message = %X, want %X", got, body)
	}
}

func TestReadNDEFShortChunksStillRejected(t *testing.T) {
	steps := ndefPrefix(t, []byte{0x00, 0x10})
	steps = append(steps,
		scriptStep{want: ReadBinaryCommand(2, 0x10), resp: mustHex(t, "6700")},
		scriptStep{want: ReadBinaryCommand(2, 0x10), resp: mustHex(t, "6700")},
	)
	_, err := ReadNDEF(&scriptCard{t: t, steps: steps})
	if !IsLengthError(err) {
		t.Fatalf("expected length error, got %v", err)
	}
}

func TestReadNDEFStopsAtFileEnd(t *testing.T) {
	steps := ndefPrefix(t, []byte{0x01, 0x00})
	steps = append(steps,
		scriptStep{want: ReadBinaryCommand(2, 0xFF), resp: append(bytes.Repeat([]byte{0xAA}, 0xFF), 0x90, 0x00)},
		scriptStep{want: ReadBinaryCommand(2+0xFF, 1), resp: mustHex(t, "6B00")},
	)
	got, err := ReadNDEF(&scriptCard{t: t, steps: steps})
	if err != nil {
		t.Fatalf("ReadNDEF returned error: %v", err)
	}
	if len(got) != 0xFF {
		t.Fatalf("read %d bytes, want %d", len(got), 0xFF)
	}
	if !IsBoundaryError(&SWError{Cmd: 0xB0, SW: SWBoundaryError}) {
		t.Fatal("native boundary status not recognised")
	}
}

func TestSelectRequiresISOSuccess(t *testing.T) {
	card := &scriptCard{t: t, steps: []scriptStep{
		{want: SelectAppCommand(), resp: mustHex(t, "9100")},
	}}
	var swErr *SWError
	if err := SelectNDEFApp(card); !errors.As(err, &swErr) || swErr.SW != SWDESFireOK {
		t.Fatalf("expected SWError 9100, got %v", err)
	}
}
