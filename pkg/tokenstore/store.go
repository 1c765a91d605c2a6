package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/benmeehan/location-agent/pkg/encryption"
	"github.com/benmeehan/location-agent/pkg/file"
)

// Record is the persisted part of a session.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Store keeps the latest session in an encrypted file so a restarted agent
// can refresh instead of authenticating again.
type Store struct {
	path       string
	fileOps    file.FileOperations
	encryption encryption.EncryptionManagerInterface
}

// New creates a Store writing to path.
func New(path string, fileOps file.FileOperations, encryptionManager encryption.EncryptionManagerInterface) *Store {
	return &Store{
		path:       path,
		fileOps:    fileOps,
		encryption: encryptionManager,
	}
}

// Load returns the stored record. ok is false when nothing has been stored yet.
func (s *Store) Load() (record Record, ok bool, err error) {
	data, err := s.fileOps.ReadFileRaw(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	if len(data) == 0 {
		return Record{}, false, nil
	}

	plaintext, err := s.encryption.Decrypt(data)
	if err != nil {
		return Record{}, false, err
	}
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return Record{}, false, fmt.Errorf("failed to parse token data: %w", err)
	}
	return record, true, nil
}

// Save encrypts and writes record, replacing the previous one.
func (s *Store) Save(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize token data: %w", err)
	}

	ciphertext, err := s.encryption.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt token data: %w", err)
	}
	return s.fileOps.WriteFileRaw(s.path, ciphertext)
}
