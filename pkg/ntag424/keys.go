package ntag424

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KeyFile represents a key loaded from a .hex file.
type KeyFile struct {
	Name string // File name (e.g., "k1.hex")
	Key  []byte // 16-byte AES key
}

// DefaultKey is the all-zero factory key present in every slot of a new tag.
var DefaultKey = make([]byte, 16)

// LoadKeyHexFile loads a 16-byte AES key from a .hex file.
// The file should contain a single line with 32 hexadecimal characters.
func LoadKeyHexFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		return ParseKeyHex(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("key file is empty")
}

// ParseKeyHex decodes a 32-character hex key.
func ParseKeyHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != 32 {
		return nil, fmt.Errorf("key must be 32 hex chars, got %d", len(s))
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %v", err)
	}
	return key, nil
}

// LoadAllHexKeys loads all .hex key files from a directory.
// Invalid files are skipped.
func LoadAllHexKeys(dir string) ([]KeyFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var keys []KeyFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) != ".hex" {
			continue
		}

		key, err := LoadKeyHexFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		keys = append(keys, KeyFile{Name: e.Name(), Key: key})
	}
	return keys, nil
}

// ChangeKeyData builds the plaintext of a ChangeKey command.
//
// Changing the slot used for authentication sends NewKey(16) || version.
// Any other slot sends XOR(new, old)(16) || version || JamCRC32(new).
func ChangeKeyData(slot, authSlot byte, newKey, oldKey []byte, version byte) ([]byte, error) {
	if len(newKey) != 16 {
		return nil, fmt.Errorf("new key for slot %d: %d bytes: %w", slot, len(newKey), ErrLengthMismatch)
	}
	if slot == authSlot {
		data := make([]byte, 0, 17)
		data = append(data, newKey...)
		return append(data, version), nil
	}
	x, err := Xor(newKey, oldKey)
	if err != nil {
		return nil, fmt.Errorf("change key slot %d: %w", slot, err)
	}
	data := make([]byte, 0, 21)
	data = append(data, x...)
	data = append(data, version)
	return append(data, JamCRC32(newKey)...), nil
}

// ChangeKeyCommand builds the secure ChangeKey (INS 0xC4) command for slot.
func ChangeKeyCommand(s Session, slot, authSlot byte, newKey, oldKey []byte, version byte) (Session, []byte, error) {
	if !s.Authenticated() {
		return s, nil, ErrNotAuthenticated
	}
	data, err := ChangeKeyData(slot, authSlot, newKey, oldKey, version)
	if err != nil {
		return s, nil, err
	}
	return BuildSecureCommand(s, InsChangeKey, []byte{slot}, data)
}

// ChangeKey changes one key slot over card. Changing the authentication slot
// invalidates the session on the tag; the response then carries no MAC.
func ChangeKey(card Card, s Session, slot, authSlot byte, newKey, oldKey []byte, version byte) (Session, error) {
	next, cmd, err := ChangeKeyCommand(s, slot, authSlot, newKey, oldKey, version)
	if err != nil {
		return s, err
	}
	r, err := Exchange(card, cmd)
	if err != nil {
		return next, err
	}
	_, err = VerifyResponse(next, InsChangeKey, r)
	return next, err
}
