package channel

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// decryptPayload reverses the chat platform's AES-256-CBC envelope: the
// key is sha256(encryptKey), the ciphertext is base64-encoded with the IV
// as its first 16 bytes, and the plaintext is PKCS#7 padded (spec.md §6
// "optional AES-CBC decrypt").
func decryptPayload(encryptKey, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("channel: decode ciphertext: %w", err)
	}
	if len(raw) < aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("channel: ciphertext length %d is not a multiple of the block size", len(raw))
	}

	key := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("channel: new cipher: %w", err)
	}

	iv := raw[:aes.BlockSize]
	ciphertext := raw[aes.BlockSize:]
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("channel: empty ciphertext after IV")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return unpadPKCS7(plaintext)
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("channel: cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, fmt.Errorf("channel: invalid PKCS#7 padding")
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, fmt.Errorf("channel: invalid PKCS#7 padding bytes")
	}
	return data[:len(data)-padLen], nil
}
