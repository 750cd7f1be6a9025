package tagsim

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

var testUID = []byte{0x04, 0xDE, 0x5F, 0x1E, 0xAC, 0xC0, 0x40}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func authenticate(t *testing.T, tag *Tag, key []byte, keyNo byte) ntag424.Session {
	t.Helper()
	if err := ntag424.SelectNDEFApp(tag); err != nil {
		t.Fatalf("SelectNDEFApp returned error: %v", err)
	}
	s, err := ntag424.NewSession(key)
	if err != nil {
		t.Fatalf("NewSession returned error: %v", err)
	}
	s, err = ntag424.AuthenticateEV2First(tag, s, keyNo)
	if err != nil {
		t.Fatalf("AuthenticateEV2First returned error: %v", err)
	}
	return s
}

func TestFactoryTagAnswersReads(t *testing.T) {
	tag := New(testUID)

	uid, err := ntag424.GetUID(tag)
	if err != nil {
		t.Fatalf("GetUID returned error: %v", err)
	}
	if !bytes.Equal(uid, testUID) {
		t.Fatalf("uid = %X", uid)
	}

	v, err := ntag424.GetVersion(tag)
	if err != nil {
		t.Fatalf("GetVersion returned error: %v", err)
	}
	if v.HWMajorVer != 0x30 || !bytes.Equal(v.UID, testUID) {
		t.Fatalf("unexpected version %+v", v)
	}

	if err := ntag424.SelectNDEFApp(tag); err != nil {
		t.Fatalf("SelectNDEFApp returned error: %v", err)
	}
	fs, err := ntag424.GetFileSettings(tag, ntag424.FileNDEF)
	if err != nil {
		t.Fatalf("GetFileSettings returned error: %v", err)
	}
	if fs.SDMEnabled() || fs.AR1 != 0xE0 || fs.AR2 != 0xEE || fs.Size != 256 {
		t.Fatalf("unexpected settings %+v", fs)
	}
}

func TestPlainWriteThenReadURI(t *testing.T) {
	tag := New(testUID)
	msg, err := ntag424.NewURIMessage("lnurlw://card.example.com/ln")
	if err != nil {
		t.Fatalf("NewURIMessage returned error: %v", err)
	}
	if err := ntag424.WriteNDEFPlain(tag, msg); err != nil {
		t.Fatalf("WriteNDEFPlain returned error: %v", err)
	}
	got, err := ntag424.ReadURI(tag)
	if err != nil {
		t.Fatalf("ReadURI returned error: %v", err)
	}
	if got != "lnurlw://card.example.com/ln" {
		t.Fatalf("uri = %q", got)
	}
}

func TestAuthenticateWrongKey(t *testing.T) {
	tag := New(testUID)
	tag.Keys[0] = bytes.Repeat([]byte{0x11}, 16)
	if err := ntag424.SelectNDEFApp(tag); err != nil {
		t.Fatalf("SelectNDEFApp returned error: %v", err)
	}
	s, err := ntag424.NewSession(ntag424.DefaultKey)
	if err != nil {
		t.Fatalf("NewSession returned error: %v", err)
	}
	_, err = ntag424.AuthenticateEV2First(tag, s, 0)
	if _, sw, _, ok := ntag424.ClassifyAuthError(err); !ok || sw != ntag424.SWAuthError {
		t.Fatalf("expected auth error 91AE, got %v", err)
	}
}

func TestDiagnoseAuthSlots(t *testing.T) {
	tag := New(testUID)
	tag.Keys[0] = bytes.Repeat([]byte{0x11}, 16)

	results := ntag424.DiagnoseAuthSlots(tag, ntag424.DefaultKey, []byte{0, 1, 2})
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if r := results[0]; r.Success || r.Step == "" || r.SW != ntag424.SWAuthError {
		t.Fatalf("slot 0: %+v", r)
	}
	for _, r := range results[1:] {
		if !r.Success {
			t.Fatalf("slot %d: %+v", r.Slot, r)
		}
	}
}

func TestAuthenticateWithFallbackFindsFactoryKey(t *testing.T) {
	tag := New(testUID)
	k0 := bytes.Repeat([]byte{0x22}, 16)

	_, used, err := ntag424.AuthenticateWithFallback(tag, k0, 1)
	if err != nil {
		t.Fatalf("AuthenticateWithFallback returned error: %v", err)
	}
	if !used.Factory || used.KeyNo != 0 {
		t.Fatalf("attempt = %+v", used)
	}

	tag.Keys[0] = k0
	_, used, err = ntag424.AuthenticateWithFallback(tag, k0, 1)
	if err != nil {
		t.Fatalf("AuthenticateWithFallback returned error: %v", err)
	}
	if used.Factory || used.KeyNo != 0 || !bytes.Equal(used.Key, k0) {
		t.Fatalf("attempt = %+v", used)
	}
}

func TestAuthenticateWithFallbackExhausted(t *testing.T) {
	tag := New(testUID)
	tag.Keys[0] = bytes.Repeat([]byte{0x33}, 16)
	tag.Keys[1] = bytes.Repeat([]byte{0x33}, 16)

	_, _, err := ntag424.AuthenticateWithFallback(tag, bytes.Repeat([]byte{0x22}, 16), 1)
	if !ntag424.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestChangeKeyUpdatesSlots(t *testing.T) {
	tag := New(testUID)
	s := authenticate(t, tag, ntag424.DefaultKey, 0)

	k1 := bytes.Repeat([]byte{0x11}, 16)
	k0 := bytes.Repeat([]byte{0x22}, 16)
	s, err := ntag424.ChangeKey(tag, s, 1, 0, k1, ntag424.DefaultKey, 0x01)
	if err != nil {
		t.Fatalf("ChangeKey slot 1 returned error: %v", err)
	}
	if _, err := ntag424.ChangeKey(tag, s, 0, 0, k0, ntag424.DefaultKey, 0x01); err != nil {
		t.Fatalf("ChangeKey slot 0 returned error: %v", err)
	}
	if !bytes.Equal(tag.Keys[1], k1) || !bytes.Equal(tag.Keys[0], k0) {
		t.Fatalf("keys = %X / %X", tag.Keys[0], tag.Keys[1])
	}
	if tag.KeyVersions[1] != 0x01 {
		t.Fatalf("key version = %d", tag.KeyVersions[1])
	}

	// Changing key 0 ends the session.
	if _, err := ntag424.ChangeKey(tag, s, 2, 0, k1, ntag424.DefaultKey, 0x01); err == nil {
		t.Fatal("expected failure after the session key changed")
	}
	authenticate(t, tag, k0, 0)
}

func TestChangeKeyRejectsWrongOldKey(t *testing.T) {
	tag := New(testUID)
	s := authenticate(t, tag, ntag424.DefaultKey, 0)
	wrongOld := bytes.Repeat([]byte{0x33}, 16)
	_, err := ntag424.ChangeKey(tag, s, 3, 0, bytes.Repeat([]byte{0x44}, 16), wrongOld, 0x01)
	var swErr *ntag424.SWError
	if !errors.As(err, &swErr) || swErr.SW != ntag424.SWIntegrityErr {
		t.Fatalf("expected SWError 911E, got %v", err)
	}
	if !bytes.Equal(tag.Keys[3], ntag424.DefaultKey) {
		t.Fatalf("slot 3 changed to %X", tag.Keys[3])
	}
}

func TestTamperedMACRejected(t *testing.T) {
	tag := New(testUID)
	s := authenticate(t, tag, ntag424.DefaultKey, 0)
	_, cmd, err := ntag424.ChangeFileSettingsCommand(s, ntag424.FileNDEF, []byte{0x00, 0xE0, 0xEE})
	if err != nil {
		t.Fatalf("ChangeFileSettingsCommand returned error: %v", err)
	}
	cmd[len(cmd)-2] ^= 0x01
	resp, err := tag.Transmit(cmd)
	if err != nil {
		t.Fatalf("Transmit returned error: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x91, 0x1E}) {
		t.Fatalf("resp = %X, want 911E", resp)
	}
}

func TestSelectDropsSession(t *testing.T) {
	tag := New(testUID)
	s := authenticate(t, tag, ntag424.DefaultKey, 0)
	if err := ntag424.SelectNDEFApp(tag); err != nil {
		t.Fatalf("SelectNDEFApp returned error: %v", err)
	}
	var swErr *ntag424.SWError
	if _, err := ntag424.ChangeFileSettings(tag, s, ntag424.FileNDEF, []byte{0x00, 0xE0, 0xEE}); !errors.As(err, &swErr) {
		t.Fatalf("expected SWError after reselect, got %v", err)
	}
}

func TestSUNMirrorOnRead(t *testing.T) {
	tag := New(testUID)
	url := "lnurlw://card.example.com/ln?p=00000000000000000000000000000000&c=0000000000000000"
	msg, err := ntag424.NewURIMessage(url)
	if err != nil {
		t.Fatalf("NewURIMessage returned error: %v", err)
	}
	if err := ntag424.WriteNDEFPlain(tag, msg); err != nil {
		t.Fatalf("WriteNDEFPlain returned error: %v", err)
	}

	s := authenticate(t, tag, ntag424.DefaultKey, 0)
	piccOff := uint32(ntag424.URIRecordHeaderLen + strings.Index(url, "p=") + 2)
	macOff := uint32(ntag424.URIRecordHeaderLen + strings.Index(url, "c=") + 2)
	data := ntag424.BuildChangeFileSettingsData(0x00, 0x00, 0xE0, &ntag424.SDMConfig{
		Options:        ntag424.SDMUIDMirror | ntag424.SDMReadCtr | ntag424.SDMASCII,
		Meta:           ntag424.AccessKey1,
		File:           ntag424.AccessKey2,
		Ctr:            ntag424.AccessNone,
		PICCDataOffset: piccOff,
		MACInputOffset: macOff,
		MACOffset:      macOff,
	})
	if _, err := ntag424.ChangeFileSettings(tag, s, ntag424.FileNDEF, data); err != nil {
		t.Fatalf("ChangeFileSettings returned error: %v", err)
	}
	if !tag.Settings().SDMEnabled() || tag.Settings().Size != ndefFileSize || tag.Settings().PICCDataOffset != piccOff {
		t.Fatalf("settings not applied: %+v", tag.Settings())
	}

	for want := uint32(1); want <= 2; want++ {
		tapped, err := ntag424.ReadURI(tag)
		if err != nil {
			t.Fatalf("ReadURI returned error: %v", err)
		}
		picc, ok, err := ntag424.VerifySUN(tapped, ntag424.DefaultKey, ntag424.DefaultKey)
		if err != nil {
			t.Fatalf("VerifySUN returned error: %v", err)
		}
		if !ok || picc.Counter != want || !bytes.Equal(picc.UID, testUID) {
			t.Fatalf("tap %d: ok=%v counter=%d uid=%X", want, ok, picc.Counter, picc.UID)
		}
	}
	if !bytes.Equal(tag.NDEFFile()[:len(msg)], msg) {
		t.Fatal("stored NDEF file was overwritten by the mirror")
	}
}

func TestChangeFileSettingsRejectsOutOfRangeMirror(t *testing.T) {
	tag := New(testUID)
	s := authenticate(t, tag, ntag424.DefaultKey, 0)
	data := ntag424.BuildChangeFileSettingsData(0x00, 0x00, 0xE0, &ntag424.SDMConfig{
		Options:        ntag424.SDMUIDMirror | ntag424.SDMReadCtr | ntag424.SDMASCII,
		Meta:           ntag424.AccessKey1,
		File:           ntag424.AccessKey2,
		Ctr:            ntag424.AccessNone,
		PICCDataOffset: 250,
		MACInputOffset: 100,
		MACOffset:      100,
	})
	var swErr *ntag424.SWError
	if _, err := ntag424.ChangeFileSettings(tag, s, ntag424.FileNDEF, data); !errors.As(err, &swErr) || swErr.SW != ntag424.SWParameterErr {
		t.Fatalf("expected SWError 919E, got %v", err)
	}
	if tag.Settings().SDMEnabled() {
		t.Fatal("settings changed")
	}
}

func TestWriteNeedsKeyAfterLock(t *testing.T) {
	tag := New(testUID)
	s := authenticate(t, tag, ntag424.DefaultKey, 0)
	if _, err := ntag424.ChangeFileSettings(tag, s, ntag424.FileNDEF, []byte{0x00, 0x00, 0xE0}); err != nil {
		t.Fatalf("ChangeFileSettings returned error: %v", err)
	}
	var swErr *ntag424.SWError
	if err := ntag424.WriteNDEFPlain(tag, []byte{0x00, 0x00}); !errors.As(err, &swErr) || swErr.SW != ntag424.SWSecurityNotSatisfied {
		t.Fatalf("expected SWError 6982, got %v", err)
	}
}

func TestRemoveClearsSession(t *testing.T) {
	tag := New(testUID)
	authenticate(t, tag, ntag424.DefaultKey, 0)
	tag.Remove()
	if tag.auth != authNone || tag.appSelected {
		t.Fatal("volatile state survived removal")
	}
	if len(tag.Commands()) == 0 {
		t.Fatal("no commands logged")
	}
}
