package channel

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"testing"
)

func encryptForTest(t *testing.T, key, plaintext string) string {
	t.Helper()
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		t.Fatalf("aes.NewCipher() error = %v", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		t.Fatalf("read iv: %v", err)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(append(iv, out...))
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func TestDecryptPayloadRoundTrips(t *testing.T) {
	encoded := encryptForTest(t, "my-encrypt-key", `{"message_id":"m1","text":"hello"}`)

	plaintext, err := decryptPayload("my-encrypt-key", encoded)
	if err != nil {
		t.Fatalf("decryptPayload() error = %v", err)
	}
	if string(plaintext) != `{"message_id":"m1","text":"hello"}` {
		t.Fatalf("got %q", plaintext)
	}
}

func TestDecryptPayloadRejectsWrongKey(t *testing.T) {
	encoded := encryptForTest(t, "right-key", `{"text":"hello"}`)

	if _, err := decryptPayload("wrong-key", encoded); err == nil {
		t.Fatal("expected decrypt with wrong key to fail padding check")
	}
}
