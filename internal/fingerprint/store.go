package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	record *Record
}

func (s *MemoryStore) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, nil
	}
	copied := *s.record
	return &copied, nil
}

func (s *MemoryStore) Save(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = &record
	return nil
}

// ClientStore is a request-scoped store over the record a client keeps for
// itself and echoes back with each event.
type ClientStore struct {
	Record *Record
	issued bool
}

func (s *ClientStore) Load() (*Record, error) {
	if s.Record == nil {
		return nil, nil
	}
	copied := *s.Record
	return &copied, nil
}

func (s *ClientStore) Save(record Record) error {
	s.Record = &record
	s.issued = true
	return nil
}

// Issued reports whether a new record was saved, which the client must then
// replace its copy with.
func (s *ClientStore) Issued() bool {
	return s.issued
}

// FileStore keeps the record as a JSON document on disk.
type FileStore struct {
	Path string
}

func (s FileStore) Load() (*Record, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fingerprint: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode fingerprint: %w", err)
	}
	return &record, nil
}

// Save writes through a temporary file so readers never see a partial record.
func (s FileStore) Save(record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create fingerprint dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".fingerprint-*")
	if err != nil {
		return fmt.Errorf("create temp fingerprint: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write fingerprint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close fingerprint: %w", err)
	}
	return os.Rename(tmp.Name(), s.Path)
}
