package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore is the boundary to wherever raw document bytes live. The
// content ref it hands out is opaque to callers and content-addressed,
// so a byte-identical re-upload resolves to the same ref.
type BlobStore interface {
	Save(filename string, data []byte) (contentRef string, err error)
	Open(contentRef string) ([]byte, error)
}

const StorageProviderLocal = "local"

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderLocal
	}
	return provider
}

func GetUploadDir() string {
	dir := strings.TrimSpace(os.Getenv("UPLOAD_DIR"))
	if dir == "" {
		dir = "uploads"
	}
	return dir
}

// LocalBlobStore keeps uploads on the local disk under UPLOAD_DIR,
// named by the SHA-256 of their contents.
type LocalBlobStore struct {
	Dir string
}

func NewLocalBlobStore() *LocalBlobStore {
	return &LocalBlobStore{Dir: GetUploadDir()}
}

func (s *LocalBlobStore) Save(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:]) + strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(s.Dir, ref)
	if _, err := os.Stat(path); err == nil {
		// Same bytes already stored.
		return ref, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *LocalBlobStore) Open(contentRef string) ([]byte, error) {
	// Refs are hex digests plus an extension; reject anything that
	// could escape the upload directory.
	if contentRef != filepath.Base(contentRef) {
		return nil, ErrorRecordNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, contentRef))
	if err != nil {
		return nil, err
	}
	return data, nil
}
