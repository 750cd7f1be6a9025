package boltcard

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

const (
	Scheme = "lnurlw://"

	PICCPlaceholder = "{picc}"
	CMACPlaceholder = "{cmac}"

	// MaxURLLen is the first URL length the NDEF file cannot hold.
	MaxURLLen = 250

	piccHexLen = 32
	cmacHexLen = 16
	urlSuffix  = "?p=00000000000000000000000000000000&c=0000000000000000"
)

// URLTemplate is the URL written to the tag together with the file offsets
// the tag overwrites with PICC data and the SUN MAC on every read.
type URLTemplate struct {
	URL        string
	PICCOffset int
	CMACOffset int
}

// BuildURLTemplate expands a withdraw URL into a URLTemplate.
//
// A URL carrying both {picc} and {cmac} has them replaced by filler of the
// mirror's width. Any other URL gets ?p=...&c=... appended and must not carry
// a query string of its own.
func BuildURLTemplate(url string) (URLTemplate, error) {
	if !strings.HasPrefix(url, Scheme) {
		return URLTemplate{}, errors.Wrapf(ErrScheme, "url %q", url)
	}

	hasPICC := strings.Contains(url, PICCPlaceholder)
	hasCMAC := strings.Contains(url, CMACPlaceholder)

	var t URLTemplate
	switch {
	case hasPICC && hasCMAC:
		if strings.Count(url, PICCPlaceholder) != 1 || strings.Count(url, CMACPlaceholder) != 1 {
			return URLTemplate{}, errors.Wrap(ErrPlaceholder, "placeholders must appear once")
		}
		pi, ci := strings.Index(url, PICCPlaceholder), strings.Index(url, CMACPlaceholder)
		// The earlier placeholder shifts the later one by its growth.
		if pi < ci {
			ci += piccHexLen - len(PICCPlaceholder)
		} else {
			pi += cmacHexLen - len(CMACPlaceholder)
		}
		expanded := strings.Replace(url, PICCPlaceholder, strings.Repeat("p", piccHexLen), 1)
		expanded = strings.Replace(expanded, CMACPlaceholder, strings.Repeat("c", cmacHexLen), 1)
		t = URLTemplate{
			URL:        expanded,
			PICCOffset: pi + ntag424.URIRecordHeaderLen,
			CMACOffset: ci + ntag424.URIRecordHeaderLen,
		}
	case hasPICC || hasCMAC:
		return URLTemplate{}, ErrPlaceholder
	default:
		if strings.Contains(url, "?") {
			return URLTemplate{}, errors.Wrapf(ErrQuery, "url %q", url)
		}
		t = URLTemplate{
			URL:        url + urlSuffix,
			PICCOffset: len(url) + 10,
			CMACOffset: len(url) + 45,
		}
	}

	if len(t.URL) >= MaxURLLen {
		return URLTemplate{}, errors.Wrapf(ErrURLTooLong, "%d characters, limit %d", len(t.URL), MaxURLLen-1)
	}
	return t, nil
}

// Mirrors slices the PICC data and SUN MAC mirrors out of a URL read from a
// card burned with t.
func (t URLTemplate) Mirrors(tapped string) (picc, mac []byte, err error) {
	if len(tapped) != len(t.URL) {
		return nil, nil, errors.Errorf("tapped url is %d characters, template is %d", len(tapped), len(t.URL))
	}
	pi := t.PICCOffset - ntag424.URIRecordHeaderLen
	ci := t.CMACOffset - ntag424.URIRecordHeaderLen
	if picc, err = hex.DecodeString(tapped[pi : pi+piccHexLen]); err != nil {
		return nil, nil, errors.Wrap(err, "picc mirror")
	}
	if mac, err = hex.DecodeString(tapped[ci : ci+cmacHexLen]); err != nil {
		return nil, nil, errors.Wrap(err, "cmac mirror")
	}
	return picc, mac, nil
}
