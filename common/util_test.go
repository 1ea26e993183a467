package common

import (
	"bytes"
	"testing"
)

func TestDataCompression(t *testing.T) {
	data := "message"
	compressedData, err := CompressData([]byte(data))
	if err != nil {
		t.Fatal(err)
	}

	decompressedData, err := DecompressData(compressedData)
	if err != nil {
		t.Fatal(err)
	}

	if string(decompressedData) != data {
		t.Fatalf("decompressed: %s, expected: %s", decompressedData, data)
	}
}

func TestGCMEncryption(t *testing.T) {
	password := "password"
	src := []byte("key_bundle_bytes")
	encrypted, err := EncryptGCM(password, src)
	if err != nil {
		t.Fatal(err)
	}

	decrypted, err := DecryptGCM(password, encrypted)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(decrypted, src) {
		t.Fatalf("decrypted: %s, expected: %s", decrypted, src)
	}
}

func TestGCMEncryptionWrongPassword(t *testing.T) {
	encrypted, err := EncryptGCM("password", []byte("key_bundle_bytes"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecryptGCM("wrong", encrypted); err == nil {
		t.Fatal("expected decryption to fail with the wrong password")
	}
}
