package boltcard

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/skythen/apdu"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

// Options tunes Burn and Wipe.
type Options struct {
	// KeyVersion is stored with every changed key. Zero means DefaultKeyVersion.
	KeyVersion byte
	// Rand supplies RndA. Nil means crypto/rand.
	Rand io.Reader
	// SkipCheck skips the GetVersion compatibility check.
	SkipCheck bool
}

func (o Options) keyVersion() byte {
	if o.KeyVersion == 0 {
		return DefaultKeyVersion
	}
	return o.KeyVersion
}

func (o Options) newSession(key []byte) (ntag424.Session, error) {
	r := o.Rand
	if r == nil {
		r = rand.Reader
	}
	return ntag424.NewSessionRand(key, r)
}

// Burn provisions a factory tag: it writes the URL template, authenticates
// with the all-zero key, turns on SUN mirroring and installs keys.
//
// Input is validated before anything is sent. Burn stops at the first
// unexpected status; the tag must then be recovered with the keys it holds.
func Burn(card ntag424.Card, url string, keys [][]byte, opts Options) (URLTemplate, error) {
	t, err := BuildURLTemplate(url)
	if err != nil {
		return URLTemplate{}, err
	}
	if err := validateKeys(keys); err != nil {
		return URLTemplate{}, err
	}
	if !opts.SkipCheck {
		if _, err := CheckCard(card); err != nil {
			return t, &StepError{Step: "check card", Err: err}
		}
	}

	apdus, err := WriteURL(url)
	if err != nil {
		return t, &StepError{Step: "write url", Err: err}
	}
	if err := runPlain(card, apdus); err != nil {
		return t, &StepError{Step: "write url", Err: err}
	}
	slog.Info("url written", "url", t.URL, "picc_offset", t.PICCOffset, "cmac_offset", t.CMACOffset)

	s, err := authenticate(card, ntag424.DefaultKey, opts)
	if err != nil {
		return t, err
	}

	next, apdus, err := ConfigurePICC(s, url)
	if err != nil {
		return t, &StepError{Step: "configure picc", Err: err}
	}
	if err := runSecure(card, s, ntag424.InsChangeFileSettings, apdus); err != nil {
		return t, &StepError{Step: "configure picc", Err: err}
	}
	s = next
	slog.Info("SUN mirroring enabled")

	next, apdus, err = ChangeKeys(s, keys, opts.keyVersion())
	if err != nil {
		return t, &StepError{Step: "change keys", Err: err}
	}
	if err := runSecure(card, s, ntag424.InsChangeKey, apdus); err != nil {
		return t, &StepError{Step: "change keys", Err: err}
	}
	slog.Info("keys changed", "cmd_counter", next.CmdCounter)
	return t, nil
}

// Wipe returns a provisioned tag to factory state. keys are the five keys
// currently on the tag.
func Wipe(card ntag424.Card, keys [][]byte, opts Options) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if !opts.SkipCheck {
		if _, err := CheckCard(card); err != nil {
			return &StepError{Step: "check card", Err: err}
		}
	}

	s, err := authenticate(card, keys[0], opts)
	if err != nil {
		return err
	}

	next, apdus, err := ResetPICC(s)
	if err != nil {
		return &StepError{Step: "reset picc", Err: err}
	}
	if err := runSecure(card, s, ntag424.InsChangeFileSettings, apdus); err != nil {
		return &StepError{Step: "reset picc", Err: err}
	}
	s = next
	slog.Info("SUN mirroring disabled")

	next, apdus, err = RestoreKeys(s, keys, opts.keyVersion())
	if err != nil {
		return &StepError{Step: "restore keys", Err: err}
	}
	if err := runSecure(card, s, ntag424.InsChangeKey, apdus); err != nil {
		return &StepError{Step: "restore keys", Err: err}
	}
	slog.Info("keys restored", "cmd_counter", next.CmdCounter)

	if err := runPlain(card, ClearNDEF()); err != nil {
		return &StepError{Step: "clear ndef", Err: err}
	}
	slog.Info("NDEF cleared")
	return nil
}

// authenticate runs AuthChallenge, AuthResponse and AuthFinalize with key in
// slot 0.
func authenticate(card ntag424.Card, key []byte, opts Options) (ntag424.Session, error) {
	s, err := opts.newSession(key)
	if err != nil {
		return s, &StepError{Step: "auth challenge", Err: err}
	}
	reply, err := runUntilLast(card, AuthChallenge())
	if err != nil {
		return s, &StepError{Step: "auth challenge", Err: err}
	}
	s, apdus, err := AuthResponse(s, reply)
	if err != nil {
		return s, &StepError{Step: "auth response", Err: err}
	}
	reply, err = runUntilLast(card, apdus)
	if err != nil {
		return s, &StepError{Step: "auth response", Err: err}
	}
	s, err = AuthFinalize(s, reply)
	if err != nil {
		return s, &StepError{Step: "auth finalize", Err: err}
	}
	slog.Debug("authenticated", "ti", fmt.Sprintf("%X", s.TI))
	return s, nil
}

// runUntilLast sends apdus, requiring 9000 for all but the last, and
// returns the last reply unchecked. Only ISO commands may precede the last.
func runUntilLast(card ntag424.Card, apdus [][]byte) (apdu.Rapdu, error) {
	var r apdu.Rapdu
	for i, cmd := range apdus {
		var err error
		if r, err = ntag424.Exchange(card, cmd); err != nil {
			return r, errors.Wrapf(err, "apdu %d", i)
		}
		if i < len(apdus)-1 && ntag424.SW(r) != ntag424.SWSuccess {
			return r, &ntag424.SWError{Cmd: cmd[1], SW: ntag424.SW(r)}
		}
	}
	return r, nil
}

// runPlain sends ISO commands and requires 9000 for every one.
func runPlain(card ntag424.Card, apdus [][]byte) error {
	r, err := runUntilLast(card, apdus)
	if err != nil {
		return err
	}
	if sw := ntag424.SW(r); sw != ntag424.SWSuccess {
		return &ntag424.SWError{Cmd: apdus[len(apdus)-1][1], SW: sw}
	}
	return nil
}

// runSecure sends secure commands built from s, one counter step apart, and
// verifies each reply.
func runSecure(card ntag424.Card, s ntag424.Session, ins byte, apdus [][]byte) error {
	for i, cmd := range apdus {
		r, err := ntag424.Exchange(card, cmd)
		if err != nil {
			return errors.Wrapf(err, "apdu %d", i)
		}
		at := s
		at.CmdCounter = s.CmdCounter + uint16(i) + 1
		if _, err := ntag424.VerifyResponse(at, ins, r); err != nil {
			return errors.Wrapf(err, "apdu %d", i)
		}
	}
	return nil
}
