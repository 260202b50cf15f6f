package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/paytrust/interfaces"
)

func TestNewFileStore(t *testing.T) {
	tempDir := t.TempDir()

	fs, err := NewFileStore(tempDir, []byte("test-password-123"))
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	defer fs.Close()

	salt, err := os.ReadFile(filepath.Join(tempDir, saltName))
	if err != nil {
		t.Fatalf("Failed to read salt: %v", err)
	}
	if len(salt) != SaltSize {
		t.Errorf("Salt size = %d, want %d", len(salt), SaltSize)
	}
}

func TestFileStore_PutGet(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), []byte("test-password-456"))
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	testData := []byte("cached-peer-keys")
	if err := fs.Put("keycache/entries", testData); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := fs.Get("keycache/entries")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, testData) {
		t.Errorf("Get = %q, want %q", got, testData)
	}

	// stored bytes must not contain the plaintext
	raw, err := os.ReadFile(filepath.Join(fs.dataDir, fileName("keycache/entries")))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, testData) {
		t.Error("plaintext found in stored file")
	}
}

func TestFileStore_WrongPassword(t *testing.T) {
	tempDir := t.TempDir()

	fs, err := NewFileStore(tempDir, []byte("correct"))
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Put("k", []byte("secret")); err != nil {
		t.Fatal(err)
	}
	fs.Close()

	wrong, err := NewFileStore(tempDir, []byte("wrong"))
	if err != nil {
		t.Fatal(err)
	}
	defer wrong.Close()

	if _, err := wrong.Get("k"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Get with wrong password = %v, want ErrDecrypt", err)
	}
}

func TestFileStore_ReopenWithSamePassword(t *testing.T) {
	tempDir := t.TempDir()

	fs, err := NewFileStore(tempDir, []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Put("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	fs.Close()

	again, err := NewFileStore(tempDir, []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	got, err := again.Get("k")
	if err != nil || string(got) != "v" {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}
}

func TestFileStore_SwappedFilesFail(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	if err := fs.Put("a", []byte("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Put("b", []byte("beta")); err != nil {
		t.Fatal(err)
	}

	a := filepath.Join(fs.dataDir, fileName("a"))
	b := filepath.Join(fs.dataDir, fileName("b"))
	data, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, data, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := fs.Get("b"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Get of swapped file = %v, want ErrDecrypt", err)
	}
}

func TestFileStore_NotFoundAndDelete(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	if _, err := fs.Get("missing"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	if err := fs.Put("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := fs.Delete("k"); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
	if _, err := fs.Get("k"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("Get after Delete = %v", err)
	}
}

func TestFileStore_List(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	for _, k := range []string{"keycache/b", "keycache/a", "root/identity"} {
		if err := fs.Put(k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := fs.List("keycache/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "keycache/a" || keys[1] != "keycache/b" {
		t.Errorf("List = %v", keys)
	}
}

func TestFileStore_RotatePassword(t *testing.T) {
	tempDir := t.TempDir()

	fs, err := NewFileStore(tempDir, []byte("old"))
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Put("k1", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Put("k2", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if err := fs.RotatePassword([]byte("new")); err != nil {
		t.Fatalf("RotatePassword failed: %v", err)
	}
	if got, err := fs.Get("k1"); err != nil || string(got) != "v1" {
		t.Errorf("Get after rotate = %q, %v", got, err)
	}
	fs.Close()

	reopened, err := NewFileStore(tempDir, []byte("new"))
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if got, err := reopened.Get("k2"); err != nil || string(got) != "v2" {
		t.Errorf("Get with new password = %q, %v", got, err)
	}

	if err := reopened.RotatePassword(nil); err == nil {
		t.Error("RotatePassword(nil) should fail")
	}
}

func TestFileStore_EmptyPasswordAndClose(t *testing.T) {
	if _, err := NewFileStore(t.TempDir(), nil); err == nil {
		t.Error("NewFileStore with empty password should fail")
	}

	fs, err := NewFileStore(t.TempDir(), []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	fs.Close()
	fs.Close()

	var zero [32]byte
	if fs.encryptionKey != zero {
		t.Error("encryption key not wiped by Close")
	}
	if err := fs.Put("k", []byte("v")); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
}

func TestFileStore_PasswordIsWiped(t *testing.T) {
	pw := []byte("wipe-me")
	fs, err := NewFileStore(t.TempDir(), pw)
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	if !bytes.Equal(pw, make([]byte, len(pw))) {
		t.Error("master password was not wiped")
	}
}
