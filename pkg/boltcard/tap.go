package boltcard

import (
	"github.com/pkg/errors"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

// TapURL returns the URL a card burned with url and keys k1, k2 emits when
// tapped with read counter ctr. It lets a backend be exercised without a card.
func TapURL(url string, uid []byte, ctr uint32, k1, k2 []byte) (string, error) {
	t, err := BuildURLTemplate(url)
	if err != nil {
		return "", err
	}
	if ctr > 0xFFFFFF {
		return "", errors.Errorf("counter %d exceeds 24 bits", ctr)
	}
	enc, err := ntag424.EncryptPICCData(k1, uid, ctr)
	if err != nil {
		return "", errors.Wrap(err, "encrypt PICC data")
	}
	mac, err := ntag424.SUNMAC(k2, uid, ctr, nil)
	if err != nil {
		return "", errors.Wrap(err, "SUN MAC")
	}

	out := []byte(t.URL)
	copy(out[t.PICCOffset-ntag424.URIRecordHeaderLen:], ntag424.MirrorHex(enc))
	copy(out[t.CMACOffset-ntag424.URIRecordHeaderLen:], ntag424.MirrorHex(mac))
	return string(out), nil
}
