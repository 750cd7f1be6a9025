package boltcard

import (
	"bytes"
	"errors"
	"testing"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
	"github.com/barnettlynn/boltcard/pkg/ntag424/tagsim"
)

var simUID = []byte{0x04, 0x0B, 0x65, 0x32, 0xCA, 0x0F, 0x90}

func TestBurnTapWipeRoundTrip(t *testing.T) {
	tag := tagsim.New(simUID)
	keys := mustKeys(t, goldenKeys)

	tmpl, err := Burn(tag, legendURL, keys, Options{})
	if err != nil {
		t.Fatalf("Burn returned error: %v", err)
	}
	for i, k := range keys {
		if !bytes.Equal(tag.Keys[i], k) {
			t.Fatalf("slot %d = %X, want %X", i, tag.Keys[i], k)
		}
	}
	if fs := tag.Settings(); !fs.SDMEnabled() || int(fs.PICCDataOffset) != tmpl.PICCOffset || int(fs.MACOffset) != tmpl.CMACOffset {
		t.Fatalf("unexpected settings %+v", fs)
	}

	for want := uint32(1); want <= 3; want++ {
		tag.Remove()
		tapped, err := ReadURI(tag)
		if err != nil {
			t.Fatalf("ReadURI returned error: %v", err)
		}
		picc, err := VerifyTap(tapped, tmpl, keys[1], keys[2])
		if err != nil {
			t.Fatalf("VerifyTap(%q) returned error: %v", tapped, err)
		}
		if picc.Counter != want || !bytes.Equal(picc.UID, simUID) {
			t.Fatalf("tap %d: counter=%d uid=%X", want, picc.Counter, picc.UID)
		}
	}

	tag.Remove()
	if err := Wipe(tag, keys, Options{}); err != nil {
		t.Fatalf("Wipe returned error: %v", err)
	}
	for i := range tag.Keys {
		if !bytes.Equal(tag.Keys[i], ntag424.DefaultKey) {
			t.Fatalf("slot %d not restored: %X", i, tag.Keys[i])
		}
	}
	fs := tag.Settings()
	if fs.SDMEnabled() || fs.AR1 != 0xE0 || fs.AR2 != 0xEE {
		t.Fatalf("settings not reset: %+v", fs)
	}
	if uri, err := ReadURI(tag); err == nil {
		t.Fatalf("NDEF not cleared, read %q", uri)
	}
	if nlen := tag.NDEFFile()[:2]; !bytes.Equal(nlen, []byte{0, 0}) {
		t.Fatalf("NLEN = %X", nlen)
	}

	// A wiped tag can be burned again.
	tag.Remove()
	if _, err := Burn(tag, "lnurlw://x.io/ln?p={picc}&c={cmac}", keys, Options{}); err != nil {
		t.Fatalf("second Burn returned error: %v", err)
	}
}

func TestBurnTwiceFailsAtWrite(t *testing.T) {
	tag := tagsim.New(simUID)
	keys := mustKeys(t, goldenKeys)
	if _, err := Burn(tag, legendURL, keys, Options{}); err != nil {
		t.Fatalf("Burn returned error: %v", err)
	}
	tag.Remove()
	_, err := Burn(tag, legendURL, keys, Options{})
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "write url" {
		t.Fatalf("expected write url StepError, got %v", err)
	}
}

func TestWipeWithWrongKeysLeavesTag(t *testing.T) {
	tag := tagsim.New(simUID)
	keys := mustKeys(t, goldenKeys)
	if _, err := Burn(tag, legendURL, keys, Options{}); err != nil {
		t.Fatalf("Burn returned error: %v", err)
	}
	tag.Remove()
	wrong := mustKeys(t, goldenKeys)
	wrong[0] = bytes.Repeat([]byte{0xAA}, 16)
	if err := Wipe(tag, wrong, Options{}); err == nil {
		t.Fatal("expected Wipe to fail with the wrong key 0")
	}
	if !tag.Settings().SDMEnabled() || !bytes.Equal(tag.Keys[0], keys[0]) {
		t.Fatal("tag changed by a failed wipe")
	}
}

func TestCheckCardOnSimulatedTag(t *testing.T) {
	v, err := CheckCard(tagsim.New(simUID))
	if err != nil {
		t.Fatalf("CheckCard returned error: %v", err)
	}
	if !bytes.Equal(v.UID, simUID) {
		t.Fatalf("uid = %X", v.UID)
	}
}
