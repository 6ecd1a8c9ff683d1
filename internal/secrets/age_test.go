package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
)

func TestGenerateIdentity_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".age-key")

	if err := GenerateIdentity(path); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %o, want 0600", info.Mode().Perm())
	}
}

func TestGenerateIdentity_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".age-key")

	if err := GenerateIdentity(path); err != nil {
		t.Fatalf("first call: %v", err)
	}
	data1, _ := os.ReadFile(path)

	if err := GenerateIdentity(path); err != nil {
		t.Fatalf("second call: %v", err)
	}
	data2, _ := os.ReadFile(path)

	if string(data1) != string(data2) {
		t.Error("idempotency broken: file changed on second call")
	}
}

func TestLoadIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".age-key")

	if err := GenerateIdentity(path); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}

	id, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if id == nil {
		t.Fatal("identity is nil")
	}
	if id.Recipient() == nil {
		t.Fatal("recipient is nil")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	plaintext := "sk-live-secret-token-abc123"
	encrypted, err := Encrypt(plaintext, identity.Recipient())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if !IsEncrypted(encrypted) {
		t.Errorf("IsEncrypted(%q) = false, want true", encrypted)
	}
	if encrypted == plaintext {
		t.Error("encrypted text should differ from plaintext")
	}

	decrypted, err := Decrypt(encrypted, identity)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("round trip: got %q, want %q", decrypted, plaintext)
	}
}

func TestDecrypt_RejectsPlainStrings(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	if _, err := Decrypt("not-encrypted", identity); err == nil {
		t.Error("Decrypt should reject non-ENC values")
	}
}

func TestResolve_PlainPassthrough(t *testing.T) {
	got, err := Resolve("plain-api-key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "plain-api-key" {
		t.Errorf("Resolve plain: got %q", got)
	}
}

func TestResolve_Encrypted(t *testing.T) {
	t.Setenv("VESPER_PATH", t.TempDir())
	if err := GenerateIdentity(KeyPath()); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	identity, err := LoadIdentity(KeyPath())
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}

	encrypted, err := Encrypt("hunter2", identity.Recipient())
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Resolve(encrypted)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("Resolve encrypted: got %q", got)
	}
}

func TestSetEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("# keys\nFOO=bar\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := SetEntry(path, "FOO", "baz qux"); err != nil {
		t.Fatalf("SetEntry update: %v", err)
	}
	if err := SetEntry(path, "NEW", "val"); err != nil {
		t.Fatalf("SetEntry append: %v", err)
	}

	data, _ := os.ReadFile(path)
	content := string(data)
	if content != "# keys\nFOO=\"baz qux\"\nNEW=val\n" {
		t.Errorf("unexpected file content:\n%s", content)
	}
}
