package ntag424

import (
	"bytes"
	"errors"
	"testing"
)

var goldenKeys = []string{
	"0d2e69d49ba54a3e3ecc1e8c5fbbb6a8",
	"2b0c4da7541352808f1ef8d94991963e",
	"9d4b638be2f1200bbe7fe73fd611cf14",
	"2b0c4da7541352808f1ef8d94991963e",
	"9d4b638be2f1200bbe7fe73fd611cf14",
}

func TestEncryptDataGolden(t *testing.T) {
	s := authenticatedSession(t)
	data := append(make([]byte, 16), 0x01)
	got, err := EncryptData(s, data)
	if err != nil {
		t.Fatalf("EncryptData returned error: %v", err)
	}
	if want := mustHex(t, "42450A2642EB05B3CCAE65D244D619540C2E9BFB98CCAC801FBD5CB2DD065583"); !bytes.Equal(got, want) {
		t.Fatalf("EncryptData = %X, want %X", got, want)
	}
}

func TestBuildSecureCommandConfigureGolden(t *testing.T) {
	s := authenticatedSession(t)
	data := mustHex(t, "4000E0C1FF12 510000 740000 740000")
	next, cmd, err := ChangeFileSettingsCommand(s, FileNDEF, data)
	if err != nil {
		t.Fatalf("ChangeFileSettingsCommand returned error: %v", err)
	}
	want := mustHex(t, "905F00001902A20C420788C44DAEEEBD74112286FFDE6B900201EFA2F0EE00")
	if !bytes.Equal(cmd, want) {
		t.Fatalf("command = %X, want %X", cmd, want)
	}
	if next.CmdCounter != 1 {
		t.Fatalf("counter = %d, want 1", next.CmdCounter)
	}
	if s.CmdCounter != 0 {
		t.Fatalf("input session counter changed to %d", s.CmdCounter)
	}
}

func TestChangeKeyCommandsGolden(t *testing.T) {
	want := []string{
		"90C40000290462091CAA28FC9977C25B5C98FFFA710EA82C534F370197B72B0FCFA86468413BF91D57F1A428063100",
		"90C4000029037DC30C130622677882A3447537BE3E5D4BF56FC9E987B870ADFEA3E412575398F27A1D3B7163473000",
		"90C4000029022680EF1BEB50581FBEA2604EA7D3F5CECB74A6A6E9763DBCEBA050006F97DA3798E91381A16A11D300",
		"90C400002901C1F6723DEC5E6C447411B0E85025A87A74DBA553BE1057ACBF71C4E75303805F24CEC783560388D900",
		"90C40000290002E9375E2D0D1F450E414218081E89548DC46FEF97959E5DA18282E103CAD72A15B0909DF008831B00",
	}
	s := authenticatedSession(t)
	s.CmdCounter = 1
	for i, slot := 0, 4; slot >= 0; i, slot = i+1, slot-1 {
		var cmd []byte
		var err error
		s, cmd, err = ChangeKeyCommand(s, byte(slot), 0, mustHex(t, goldenKeys[slot]), DefaultKey, 0x01)
		if err != nil {
			t.Fatalf("slot %d: %v", slot, err)
		}
		if w := mustHex(t, want[i]); !bytes.Equal(cmd, w) {
			t.Fatalf("slot %d command = %X, want %X", slot, cmd, w)
		}
	}
	if s.CmdCounter != 6 {
		t.Fatalf("counter = %d, want 6", s.CmdCounter)
	}
}

func TestResetFileSettingsGolden(t *testing.T) {
	s := authenticatedSession(t)
	data := BuildChangeFileSettingsData(0x00, 0xE0, 0xEE, nil)
	_, cmd, err := ChangeFileSettingsCommand(s, FileNDEF, data)
	if err != nil {
		t.Fatalf("ChangeFileSettingsCommand returned error: %v", err)
	}
	want := mustHex(t, "905F000019024AE1B79F02BC499AA110643ACA38A56829187D55B44DBA8F00")
	if !bytes.Equal(cmd, want) {
		t.Fatalf("command = %X, want %X", cmd, want)
	}
}

func TestSecureCommandRequiresAuthentication(t *testing.T) {
	s := goldenSession(t)
	if _, _, err := BuildSecureCommand(s, InsChangeKey, []byte{1}, make([]byte, 21)); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("BuildSecureCommand: expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := EncryptData(s, []byte{1}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("EncryptData: expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := MACCommand(s, InsChangeKey, nil, nil); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("MACCommand: expected ErrNotAuthenticated, got %v", err)
	}
	if _, _, err := ChangeKeyCommand(s, 1, 0, make([]byte, 16), DefaultKey, 1); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("ChangeKeyCommand: expected ErrNotAuthenticated, got %v", err)
	}
	card := &scriptCard{t: t}
	if _, _, err := SsmCmdFull(card, s, InsChangeFileSettings, []byte{2}, []byte{0, 0xE0, 0xEE}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("SsmCmdFull: expected ErrNotAuthenticated, got %v", err)
	}
	if len(card.sent) != 0 {
		t.Fatalf("%d commands transmitted without authentication", len(card.sent))
	}
}

func TestCounterAdvancesOncePerCommand(t *testing.T) {
	s := authenticatedSession(t)
	for i := 1; i <= 20; i++ {
		var err error
		s, _, err = BuildSecureCommand(s, InsChangeFileSettings, []byte{2}, []byte{0, 0xE0, 0xEE})
		if err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
		if int(s.CmdCounter) != i {
			t.Fatalf("after %d commands counter = %d", i, s.CmdCounter)
		}
	}
}

func TestSecureCommandRejectsOversizedData(t *testing.T) {
	s := authenticatedSession(t)
	if _, _, err := BuildSecureCommand(s, InsWriteData, []byte{2}, make([]byte, 250)); err == nil {
		t.Fatal("expected error for oversized command")
	}
}

func TestVerifyResponseMAC(t *testing.T) {
	s := authenticatedSession(t)
	s.CmdCounter = 1

	if _, err := VerifyResponse(s, InsChangeFileSettings, rapdu(t, "82C5032A1E79A0C9", "9100")); err != nil {
		t.Fatalf("VerifyResponse returned error: %v", err)
	}
	if _, err := VerifyResponse(s, InsChangeFileSettings, rapdu(t, "82C5032A1E79A0C8", "9100")); !errors.Is(err, ErrResponseMAC) {
		t.Fatalf("expected ErrResponseMAC, got %v", err)
	}
	if _, err := VerifyResponse(s, InsChangeKey, rapdu(t, "", "9100")); err != nil {
		t.Fatalf("status-only response rejected: %v", err)
	}
	var swErr *SWError
	if _, err := VerifyResponse(s, InsChangeKey, rapdu(t, "", "911E")); !errors.As(err, &swErr) || swErr.SW != SWIntegrityErr {
		t.Fatalf("expected SWError 911E, got %v", err)
	}
}

func TestSsmCmdFullOverCard(t *testing.T) {
	s := authenticatedSession(t)
	data := mustHex(t, "4000E0C1FF12 510000 740000 740000")
	card := &scriptCard{t: t, steps: []scriptStep{{
		want: mustHex(t, "905F00001902A20C420788C44DAEEEBD74112286FFDE6B900201EFA2F0EE00"),
		resp: mustHex(t, "82C5032A1E79A0C99100"),
	}}}
	next, err := ChangeFileSettings(card, s, FileNDEF, data)
	if err != nil {
		t.Fatalf("ChangeFileSettings returned error: %v", err)
	}
	if next.CmdCounter != 1 {
		t.Fatalf("counter = %d, want 1", next.CmdCounter)
	}
}
