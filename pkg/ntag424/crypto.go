package ntag424

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/aead/cmac"
)

var zeroIV = make([]byte, aes.BlockSize)

func aesCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("CBC encrypt: data not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

func aesCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("CBC decrypt: data not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// EncryptCBC encrypts block-aligned data with AES-128-CBC.
// A nil iv means the all-zero IV used throughout EV2First.
func EncryptCBC(key, iv, data []byte) ([]byte, error) {
	if iv == nil {
		iv = zeroIV
	}
	return aesCBCEncrypt(key, iv, data)
}

// DecryptCBC is the inverse of EncryptCBC.
func DecryptCBC(key, iv, data []byte) ([]byte, error) {
	if iv == nil {
		iv = zeroIV
	}
	return aesCBCDecrypt(key, iv, data)
}

func aesCMAC(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	h, err := cmac.NewWithTagSize(block, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	h.Write(msg)
	return h.Sum(nil), nil
}

// CMAC computes the full 16-byte AES-CMAC of msg.
func CMAC(key, msg []byte) ([]byte, error) {
	return aesCMAC(key, msg)
}

func unpadISO9797M2(data []byte) ([]byte, error) {
	idx := len(data) - 1
	for idx >= 0 && data[idx] == 0x00 {
		idx--
	}
	if idx < 0 || data[idx] != 0x80 {
		return nil, errors.New("bad padding")
	}
	return data[:idx], nil
}

func truncateOddBytes(mac []byte) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = mac[1+i*2]
	}
	return out
}
