package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"github.com/opd-ai/paytrust/crypto"
	"github.com/opd-ai/paytrust/interfaces"
)

const (
	// PBKDF2Iterations is the number of iterations for key derivation (NIST recommendation)
	PBKDF2Iterations = 100000
	// EncryptionVersion is the current encryption format version
	EncryptionVersion = 1
	// SaltSize is the size of the salt for PBKDF2
	SaltSize = 32

	fileSuffix = ".enc"
	saltName   = ".salt"
)

var (
	// ErrClosed is returned by stores used after Close.
	ErrClosed = errors.New("storage closed")

	// ErrInvalidKey is returned for empty storage keys.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrDecrypt is returned when a stored file fails authentication.
	ErrDecrypt = errors.New("decryption failed (wrong password or corrupted data)")
)

// FileStore is an ISecureStorage that keeps one AES-256-GCM encrypted file
// per key. The encryption key is derived from a master password with PBKDF2
// and a salt persisted next to the data.
type FileStore struct {
	mu            sync.RWMutex
	encryptionKey [32]byte
	dataDir       string
	saltFile      string
	closed        bool
}

var _ interfaces.ISecureStorage = (*FileStore)(nil)

// NewFileStore opens or creates an encrypted store in dataDir. The master
// password is wiped before NewFileStore returns.
func NewFileStore(dataDir string, masterPassword []byte) (*FileStore, error) {
	defer crypto.ZeroBytes(masterPassword)

	if len(masterPassword) == 0 {
		return nil, fmt.Errorf("master password cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fs := &FileStore{
		dataDir:  dataDir,
		saltFile: filepath.Join(dataDir, saltName),
	}

	salt, err := fs.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derivedKey := pbkdf2.Key(masterPassword, salt, PBKDF2Iterations, 32, sha256.New)
	copy(fs.encryptionKey[:], derivedKey)
	crypto.ZeroBytes(derivedKey)

	return fs, nil
}

func (fs *FileStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(fs.saltFile)
	if err == nil {
		if len(data) != SaltSize {
			return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), SaltSize)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(fs.saltFile, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}
	return salt, nil
}

func fileName(key string) string {
	return hex.EncodeToString([]byte(key)) + fileSuffix
}

func keyFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	raw, err := hex.DecodeString(strings.TrimSuffix(name, fileSuffix))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (fs *FileStore) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(fs.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Put encrypts value and writes it atomically.
// Format: [version:2][nonce:12][ciphertext+tag:N]
func (fs *FileStore) Put(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}
	return fs.writeLocked(key, value)
}

func (fs *FileStore) writeLocked(key string, value []byte) error {
	gcm, err := fs.aead()
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	// the key name is bound as AAD so files cannot be swapped
	ciphertext := gcm.Seal(nil, nonce, value, []byte(key))

	output := make([]byte, 2+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint16(output[0:2], EncryptionVersion)
	copy(output[2:2+len(nonce)], nonce)
	copy(output[2+len(nonce):], ciphertext)

	finalFile := filepath.Join(fs.dataDir, fileName(key))
	tmpFile := finalFile + ".tmp"

	if err := os.WriteFile(tmpFile, output, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpFile, finalFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Get reads and decrypts the value for key.
func (fs *FileStore) Get(key string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.closed {
		return nil, ErrClosed
	}
	return fs.readLocked(key)
}

func (fs *FileStore) readLocked(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(fs.dataDir, fileName(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	gcm, err := fs.aead()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < 2+nonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("file too short: %d bytes", len(data))
	}
	if version := binary.BigEndian.Uint16(data[0:2]); version != EncryptionVersion {
		return nil, fmt.Errorf("unsupported encryption version: %d (expected %d)", version, EncryptionVersion)
	}

	plaintext, err := gcm.Open(nil, data[2:2+nonceSize], data[2+nonceSize:], []byte(key))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Delete overwrites the file with zeros before removing it.
func (fs *FileStore) Delete(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}

	filePath := filepath.Join(fs.dataDir, fileName(key))
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// best-effort secure deletion
	if err := os.WriteFile(filePath, make([]byte, info.Size()), 0o600); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Delete",
			"error":    err.Error(),
		}).Warn("Could not overwrite file before removal")
	}
	return os.Remove(filePath)
}

// List returns the sorted keys starting with prefix.
func (fs *FileStore) List(prefix string) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.closed {
		return nil, ErrClosed
	}
	return fs.listLocked(prefix)
}

func (fs *FileStore) listLocked(prefix string) ([]string, error) {
	dirEntries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	var keys []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if key, ok := keyFromFileName(de.Name()); ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// RotatePassword re-encrypts every stored value under a key derived from
// newMasterPassword and a fresh salt. newMasterPassword is wiped.
func (fs *FileStore) RotatePassword(newMasterPassword []byte) error {
	defer crypto.ZeroBytes(newMasterPassword)
	if len(newMasterPassword) == 0 {
		return fmt.Errorf("new master password cannot be empty")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}

	keys, err := fs.listLocked("")
	if err != nil {
		return err
	}
	values := make(map[string][]byte, len(keys))
	defer func() {
		for _, v := range values {
			crypto.ZeroBytes(v)
		}
	}()
	for _, k := range keys {
		v, err := fs.readLocked(k)
		if err != nil {
			return fmt.Errorf("failed to decrypt %q: %w", k, err)
		}
		values[k] = v
	}

	newSalt := make([]byte, SaltSize)
	if _, err := rand.Read(newSalt); err != nil {
		return fmt.Errorf("failed to generate new salt: %w", err)
	}

	oldKey := fs.encryptionKey
	defer crypto.ZeroBytes(oldKey[:])
	newKey := pbkdf2.Key(newMasterPassword, newSalt, PBKDF2Iterations, 32, sha256.New)
	copy(fs.encryptionKey[:], newKey)
	crypto.ZeroBytes(newKey)

	for k, v := range values {
		if err := fs.writeLocked(k, v); err != nil {
			fs.encryptionKey = oldKey
			return fmt.Errorf("failed to re-encrypt %q: %w", k, err)
		}
	}
	if err := os.WriteFile(fs.saltFile, newSalt, 0o600); err != nil {
		fs.encryptionKey = oldKey
		return fmt.Errorf("failed to save new salt: %w", err)
	}
	return nil
}

// Close wipes the encryption key. Safe to call more than once.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	crypto.ZeroBytes(fs.encryptionKey[:])
	fs.closed = true
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
