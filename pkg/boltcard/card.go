package boltcard

import (
	"bytes"
	"net/url"

	"github.com/pkg/errors"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

var ntag424SoftwareID = []byte{0x04, 0x04, 0x02, 0x01}

// CheckCard reads the version record and fails with ErrIncompatible unless
// the tag is an NXP NTAG 424 DNA.
func CheckCard(card ntag424.Card) (*ntag424.TagVersion, error) {
	raw, err := ntag424.GetVersionRaw(card)
	if err != nil {
		return nil, errors.Wrap(err, "get version")
	}
	v, err := ntag424.ParseVersion(raw)
	if err != nil {
		return nil, err
	}
	switch {
	case v.HWVendorID != 0x04:
		return v, errors.Wrapf(ErrIncompatible, "vendor 0x%02X is not NXP", v.HWVendorID)
	case v.HWType != 0x04:
		return v, errors.Wrapf(ErrIncompatible, "hardware type 0x%02X is not NTAG", v.HWType)
	case v.HWMajorVer != 0x30:
		return v, errors.Wrapf(ErrIncompatible, "hardware major version 0x%02X, want 0x30", v.HWMajorVer)
	case v.HWProtocol != 0x05:
		return v, errors.Wrapf(ErrIncompatible, "hardware protocol 0x%02X, want 0x05", v.HWProtocol)
	case !bytes.HasPrefix(raw[7:], ntag424SoftwareID):
		return v, errors.Wrapf(ErrIncompatible, "software %X", raw[7:14])
	}
	return v, nil
}

// ReadURI returns the URI stored on the tag with percent escapes decoded.
func ReadURI(card ntag424.Card) (string, error) {
	raw, err := ntag424.ReadURI(card)
	if err != nil {
		return "", err
	}
	uri, err := url.PathUnescape(raw)
	if err != nil {
		return raw, errors.Wrap(err, "unescape uri")
	}
	return uri, nil
}

// VerifyTap checks the PICC data and SUN MAC mirrors of a URL read from a card
// burned with t, using k1 and k2. It returns the UID and read counter they
// carry.
func VerifyTap(tapped string, t URLTemplate, k1, k2 []byte) (ntag424.PICCData, error) {
	p, c, err := t.Mirrors(tapped)
	if err != nil {
		return ntag424.PICCData{}, errors.Wrap(err, "verify tap")
	}
	picc, ok, err := ntag424.VerifySUNMirrors(p, c, k1, k2)
	if err != nil {
		return picc, errors.Wrap(err, "verify tap")
	}
	if !ok {
		return picc, ErrTapMAC
	}
	return picc, nil
}
