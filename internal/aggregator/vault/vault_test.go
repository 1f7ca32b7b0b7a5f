package vault

import (
	"errors"
	"strings"
	"testing"

	"github.com/sufrahq/sufra/internal/aggregator/domain"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	v := NewWithKey("test-master-key")
	creds := domain.Credentials{
		APIKey:        "api-key-123",
		ClientID:      "client-1",
		ClientSecret:  "shh",
		WebhookSecret: "hook-secret",
	}

	encrypted, err := v.EncryptCredentials(creds, "talabat")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.Contains(encrypted, ":") {
		t.Fatalf("expected ivHex:cipherHex format, got %q", encrypted)
	}
	if strings.Contains(encrypted, "api-key-123") {
		t.Fatalf("plaintext leaked into encrypted output")
	}

	decrypted, err := v.DecryptCredentials(encrypted, "talabat")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decrypted != creds {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", decrypted, creds)
	}
}

func TestEncryptProducesFreshIV(t *testing.T) {
	v := NewWithKey("test-master-key")
	creds := domain.Credentials{APIKey: "same"}

	first, err := v.EncryptCredentials(creds, "talabat")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := v.EncryptCredentials(creds, "talabat")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ciphertexts for repeated encryption")
	}
}

func TestDecryptWithWrongProviderFails(t *testing.T) {
	v := NewWithKey("test-master-key")
	encrypted, err := v.EncryptCredentials(domain.Credentials{APIKey: "k"}, "talabat")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := v.DecryptCredentials(encrypted, "ubereats"); !errors.Is(err, domain.ErrCorruptedCredentials) {
		t.Fatalf("expected corrupted credentials error, got %v", err)
	}
}

func TestDecryptCorruptedValueFails(t *testing.T) {
	v := NewWithKey("test-master-key")
	for _, input := range []string{"", "nothex:nothex", "deadbeef", "00:00"} {
		if _, err := v.DecryptCredentials(input, "talabat"); !errors.Is(err, domain.ErrCorruptedCredentials) {
			t.Fatalf("input %q: expected corrupted credentials error, got %v", input, err)
		}
	}
}

func TestMissingMasterKeyIsFatal(t *testing.T) {
	v := NewWithKey("")
	if _, err := v.EncryptCredentials(domain.Credentials{}, "talabat"); !errors.Is(err, domain.ErrMissingMasterKey) {
		t.Fatalf("expected missing master key error, got %v", err)
	}
	if _, err := v.DecryptCredentials("aa:bb", "talabat"); !errors.Is(err, domain.ErrMissingMasterKey) {
		t.Fatalf("expected missing master key error, got %v", err)
	}
}
