package crypto

import (
	"encoding/base64"
	"errors"
	"testing"
)

// ============================================================
// Encrypt/Decrypt Tests
// ============================================================

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"access token", "eyJhbGciOiJIUzI1NiJ9.broker-access-token"},
		{"empty string", ""},
		{"unicode", "토큰 발급 완료"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			if _, err := base64.StdEncoding.DecodeString(encrypted); err != nil {
				t.Errorf("encrypted result is not valid base64: %v", err)
			}

			decrypted, err := Decrypt(encrypted, key)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("round trip mismatch: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptUniqueNonce(t *testing.T) {
	key, _ := GenerateKey()

	a, err := Encrypt("same-token", key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same-token", key)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same token must not produce identical ciphertext")
	}
}

func TestEncryptRejectsBadKey(t *testing.T) {
	if _, err := Encrypt("token", []byte("short")); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("error = %v, want ErrInvalidKeyLength", err)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	encrypted, _ := Encrypt("token", key)

	raw, _ := base64.StdEncoding.DecodeString(encrypted)
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := Decrypt(tampered, key); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("error = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()
	encrypted, _ := Encrypt("token", key)

	if _, err := Decrypt(encrypted, other); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("error = %v, want ErrDecryptionFailed", err)
	}
}

// ============================================================
// Password Hash Tests
// ============================================================

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("webhook-secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if err := VerifyPassword("webhook-secret", hash); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := VerifyPassword("wrong", hash); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("error = %v, want ErrPasswordMismatch", err)
	}
}

func TestHashPasswordValidation(t *testing.T) {
	if _, err := HashPassword(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("empty password: error = %v, want ErrEmptyPassword", err)
	}

	long := make([]byte, MaxPasswordLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := HashPassword(string(long)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("long password: error = %v, want ErrPasswordTooLong", err)
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if err := VerifyPassword("pass", "not-a-bcrypt-hash"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("error = %v, want ErrInvalidHash", err)
	}
	if err := VerifyPassword("pass", ""); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("error = %v, want ErrInvalidHash", err)
	}
}

func TestCheckPasswordMatch(t *testing.T) {
	hash, _ := HashPassword("s3cret")
	if !CheckPasswordMatch("s3cret", hash) {
		t.Error("expected match")
	}
	if CheckPasswordMatch("nope", hash) {
		t.Error("expected mismatch")
	}
}
