// Package tagsim is an in-memory NTAG 424 DNA that answers the subset of
// ISO 7816 and native commands used for bolt card provisioning.
//
// A Tag satisfies ntag424.Card, so the same code that drives a PC/SC reader
// can be pointed at it in tests.
package tagsim

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/barnettlynn/boltcard/pkg/ntag424"
)

const (
	ndefFileSize = 256
	ccFileSize   = 32
)

var defaultCC = []byte{
	0x00, 0x17, 0x20, 0x01, 0x00, 0x00, 0xFF,
	0x04, 0x06, 0xE1, 0x04, 0x01, 0x00, 0x00, 0x00,
}

type authState int

const (
	authNone authState = iota
	authPending
	authDone
)

// Tag is a simulated tag. The zero value is not usable; call New.
type Tag struct {
	UID         []byte
	Keys        [5][]byte
	KeyVersions [5]byte
	Version     []byte

	// Rand supplies RndB and TI. Defaults to crypto/rand.
	Rand io.Reader

	settings    *ntag424.FileSettings
	ndef        []byte
	cc          []byte
	readCounter uint32

	appSelected  bool
	selectedFile uint16
	image        []byte // NDEF file as seen by READ BINARY, nil when stale

	versionPart int

	auth    authState
	authKey byte
	rndB    []byte
	kenc    []byte
	kmac    []byte
	ti      []byte
	ctr     uint16

	log [][]byte
}

// New returns a tag in factory state: all keys zero, an empty NDEF file
// with free read and write, and mirroring off.
func New(uid []byte) *Tag {
	t := &Tag{
		UID:  append([]byte{}, uid...),
		Rand: rand.Reader,
		ndef: make([]byte, ndefFileSize),
		cc:   make([]byte, ccFileSize),
	}
	copy(t.cc, defaultCC)
	for i := range t.Keys {
		t.Keys[i] = make([]byte, 16)
	}
	t.Version = []byte{
		0x04, 0x04, 0x02, 0x30, 0x00, 0x11, 0x05,
		0x04, 0x04, 0x02, 0x01, 0x02, 0x11, 0x05,
	}
	t.Version = append(t.Version, t.UID...)
	t.Version = append(t.Version, 0xCF, 0x5C, 0xD4, 0x55, 0x60, 0x43, 0x21)
	t.settings = factorySettings()
	return t
}

func factorySettings() *ntag424.FileSettings {
	return &ntag424.FileSettings{AR1: 0xE0, AR2: 0xEE, Size: ndefFileSize}
}

// Settings returns a copy of the NDEF file settings.
func (t *Tag) Settings() ntag424.FileSettings {
	return *t.settings
}

// NDEFFile returns a copy of the stored NDEF file without mirrored data.
func (t *Tag) NDEFFile() []byte {
	return append([]byte{}, t.ndef...)
}

// ReadCounter returns the SDM read counter.
func (t *Tag) ReadCounter() uint32 {
	return t.readCounter
}

// Commands returns every APDU received so far.
func (t *Tag) Commands() [][]byte {
	return t.log
}

// Remove simulates the tag leaving the field. All volatile state is lost.
func (t *Tag) Remove() {
	t.appSelected = false
	t.selectedFile = 0
	t.image = nil
	t.versionPart = 0
	t.resetAuth()
}

// Transmit implements ntag424.Card.
func (t *Tag) Transmit(cmd []byte) ([]byte, error) {
	t.log = append(t.log, append([]byte{}, cmd...))
	if len(cmd) < 4 {
		return sw(0x6700), nil
	}
	cla, ins := cmd[0], cmd[1]
	var data []byte
	if len(cmd) > 5 {
		lc := int(cmd[4])
		if len(cmd) < 5+lc {
			return sw(0x6700), nil
		}
		data = cmd[5 : 5+lc]
	}

	resp := t.dispatch(cla, ins, cmd, data)
	slog.Debug("tagsim", "cmd", fmt.Sprintf("%X", cmd), "resp", fmt.Sprintf("%X", resp))
	return resp, nil
}

func (t *Tag) dispatch(cla, ins byte, cmd, data []byte) []byte {
	if ins != ntag424.InsAdditionalFrame {
		t.versionPart = 0
	}
	switch {
	case cla == 0x00 && ins == 0xA4:
		return t.selectCmd(cmd[2], data)
	case cla == 0x00 && ins == 0xD6:
		return t.updateBinary(int(cmd[2])<<8|int(cmd[3]), data)
	case cla == 0x00 && ins == 0xB0:
		le := 256
		if len(cmd) == 5 && cmd[4] != 0 {
			le = int(cmd[4])
		}
		return t.readBinary(int(cmd[2])<<8|int(cmd[3]), le)
	case cla == 0xFF && ins == 0xCA:
		return ok(t.UID, 0x9000)
	case cla != 0x90:
		return sw(0x6E00)
	}

	switch ins {
	case ntag424.InsGetVersion:
		t.versionPart = 1
		return ok(t.Version[0:7], ntag424.SWMoreData)
	case ntag424.InsAdditionalFrame:
		return t.additionalFrame(data)
	case ntag424.InsAuthFirst:
		return t.authFirst(data)
	case ntag424.InsGetFileSettings:
		return t.getFileSettings(data)
	case ntag424.InsChangeFileSettings:
		return t.changeFileSettings(data)
	case ntag424.InsChangeKey:
		return t.changeKey(data)
	}
	return sw(0x911C)
}

func (t *Tag) selectCmd(p1 byte, data []byte) []byte {
	switch p1 {
	case 0x04:
		if !bytes.Equal(data, ntag424.NDEFAppAID) {
			return sw(ntag424.SWFileNotFound)
		}
		t.appSelected = true
		t.selectedFile = 0
	case 0x00:
		if !t.appSelected || len(data) != 2 {
			return sw(ntag424.SWFileNotFound)
		}
		id := binary.BigEndian.Uint16(data)
		if id != ntag424.CCFileID && id != ntag424.NDEFFileID {
			return sw(ntag424.SWFileNotFound)
		}
		t.selectedFile = id
	default:
		return sw(ntag424.SWWrongP1P2)
	}
	t.image = nil
	t.resetAuth()
	return sw(0x9000)
}

func (t *Tag) updateBinary(offset int, data []byte) []byte {
	if t.selectedFile != ntag424.NDEFFileID {
		return sw(ntag424.SWSecurityNotSatisfied)
	}
	if !t.allowed(t.settings.AR2 & 0x0F) {
		return sw(ntag424.SWSecurityNotSatisfied)
	}
	if offset+len(data) > len(t.ndef) {
		return sw(ntag424.SWWrongLength)
	}
	copy(t.ndef[offset:], data)
	t.image = nil
	return sw(0x9000)
}

func (t *Tag) readBinary(offset, le int) []byte {
	var file []byte
	switch t.selectedFile {
	case ntag424.CCFileID:
		file = t.cc
	case ntag424.NDEFFileID:
		if !t.allowed(t.settings.AR2 >> 4) {
			return sw(ntag424.SWSecurityNotSatisfied)
		}
		if t.image == nil {
			img, err := t.mirror()
			if err != nil {
				return sw(0x6F00)
			}
			t.image = img
		}
		file = t.image
	default:
		return sw(ntag424.SWFileNotFound)
	}
	if offset >= len(file) {
		return sw(ntag424.SWWrongP1P2)
	}
	end := offset + le
	if end > len(file) {
		end = len(file)
	}
	return ok(file[offset:end], 0x9000)
}

// mirror builds the NDEF file contents for one read, advancing the read
// counter when the counter is mirrored.
func (t *Tag) mirror() ([]byte, error) {
	img := append([]byte{}, t.ndef...)
	fs := t.settings
	if !fs.SDMEnabled() {
		return img, nil
	}
	if fs.SDMOptions&ntag424.SDMReadCtr != 0 {
		t.readCounter++
	}
	if fs.SDMMeta < 5 {
		enc, err := ntag424.EncryptPICCData(t.Keys[fs.SDMMeta], t.UID, t.readCounter)
		if err != nil {
			return nil, err
		}
		copy(img[fs.PICCDataOffset:], ntag424.MirrorHex(enc))
	}
	if fs.SDMMeta == ntag424.AccessFree {
		if fs.SDMOptions&ntag424.SDMUIDMirror != 0 {
			copy(img[fs.UIDOffset:], ntag424.MirrorHex(t.UID))
		}
		if fs.SDMOptions&ntag424.SDMReadCtr != 0 {
			ctr := []byte{byte(t.readCounter), byte(t.readCounter >> 8), byte(t.readCounter >> 16)}
			copy(img[fs.CtrOffset:], ntag424.MirrorHex(ctr))
		}
	}
	if fs.SDMFile < 5 {
		mac, err := ntag424.SUNMAC(t.Keys[fs.SDMFile], t.UID, t.readCounter, img[fs.MACInputOffset:fs.MACOffset])
		if err != nil {
			return nil, err
		}
		copy(img[fs.MACOffset:], ntag424.MirrorHex(mac))
	}
	return img, nil
}

func (t *Tag) additionalFrame(data []byte) []byte {
	switch {
	case t.auth == authPending:
		return t.authSecond(data)
	case t.versionPart == 1:
		t.versionPart = 2
		return ok(t.Version[7:14], ntag424.SWMoreData)
	case t.versionPart == 2:
		t.versionPart = 0
		return ok(t.Version[14:], ntag424.SWDESFireOK)
	}
	return sw(0x91CA)
}

func (t *Tag) getFileSettings(data []byte) []byte {
	if !t.appSelected || len(data) != 1 {
		return sw(ntag424.SWLengthError)
	}
	if data[0] != ntag424.FileNDEF {
		return sw(0x91F0)
	}
	return ok(t.encodeSettings(), ntag424.SWDESFireOK)
}

func (t *Tag) encodeSettings() []byte {
	fs := t.settings
	body := ntag424.BuildChangeFileSettingsData(fs.FileOption&0x03, fs.AR1, fs.AR2, sdmConfig(fs))
	out := make([]byte, 0, len(body)+4)
	out = append(out, fs.FileType)
	out = append(out, body[0:3]...)
	out = append(out, byte(fs.Size), byte(fs.Size>>8), byte(fs.Size>>16))
	return append(out, body[3:]...)
}

func sdmConfig(fs *ntag424.FileSettings) *ntag424.SDMConfig {
	if !fs.SDMEnabled() {
		return nil
	}
	return &ntag424.SDMConfig{
		Options:        fs.SDMOptions,
		Meta:           fs.SDMMeta,
		File:           fs.SDMFile,
		Ctr:            fs.SDMCtr,
		UIDOffset:      fs.UIDOffset,
		CtrOffset:      fs.CtrOffset,
		PICCDataOffset: fs.PICCDataOffset,
		MACInputOffset: fs.MACInputOffset,
		MACOffset:      fs.MACOffset,
	}
}

// allowed reports whether access condition ac is met in the current state.
func (t *Tag) allowed(ac byte) bool {
	if ac == ntag424.AccessFree {
		return true
	}
	return t.auth == authDone && t.authKey == ac
}

func ok(data []byte, status uint16) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, byte(status>>8), byte(status))
}

func sw(status uint16) []byte {
	return []byte{byte(status >> 8), byte(status)}
}
