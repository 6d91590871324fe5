package index

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/himanishpuri/muzam/pkg/models"
)

const snapshotVersion = 1

// GobEncode places a gzip-compressed binary representation of the index in
// a byte slice.
func (m *Memory) GobEncode() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buffer := new(bytes.Buffer)
	compressor := gzip.NewWriter(buffer)
	encoder := gob.NewEncoder(compressor)

	if err := encoder.Encode(snapshotVersion); err != nil {
		return nil, fmt.Errorf("unable to encode index version: %w", err)
	}
	if err := encoder.Encode(m.postings); err != nil {
		return nil, fmt.Errorf("unable to encode postings: %w", err)
	}
	if err := encoder.Encode(m.order); err != nil {
		return nil, fmt.Errorf("unable to encode catalog order: %w", err)
	}
	if err := encoder.Encode(m.next); err != nil {
		return nil, fmt.Errorf("unable to encode ordinal counter: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("unable to close compressor: %w", err)
	}
	return buffer.Bytes(), nil
}

// GobDecode replaces the index contents with a representation produced by
// GobEncode.
func (m *Memory) GobDecode(from []byte) error {
	decompressor, err := gzip.NewReader(bytes.NewReader(from))
	if err != nil {
		return fmt.Errorf("unable to open decompressor: %w", err)
	}
	defer decompressor.Close()
	decoder := gob.NewDecoder(decompressor)

	var version int
	if err := decoder.Decode(&version); err != nil {
		return fmt.Errorf("unable to decode index version: %w", err)
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported index snapshot version %d", version)
	}

	postings := make(map[string][]models.Posting)
	order := make(map[string]int)
	var next int
	if err := decoder.Decode(&postings); err != nil {
		return fmt.Errorf("unable to decode postings: %w", err)
	}
	if err := decoder.Decode(&order); err != nil {
		return fmt.Errorf("unable to decode catalog order: %w", err)
	}
	if err := decoder.Decode(&next); err != nil {
		return fmt.Errorf("unable to decode ordinal counter: %w", err)
	}

	count := 0
	for _, ps := range postings {
		count += len(ps)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings, m.order, m.next, m.count = postings, order, next, count
	return nil
}

// SaveFile writes a snapshot of the index to path.
func (m *Memory) SaveFile(path string) error {
	data, err := m.GobEncode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index snapshot: %w", err)
	}
	return nil
}

// LoadMemoryFile restores an index saved with SaveFile.
func LoadMemoryFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index snapshot: %w", err)
	}
	m := NewMemory()
	if err := m.GobDecode(data); err != nil {
		return nil, err
	}
	return m, nil
}

// Snapshot is a Memory index bound to a file. It is loaded on open when the
// file exists and written back on Close.
type Snapshot struct {
	*Memory
	path string
}

func OpenSnapshot(path string) (*Snapshot, error) {
	m, err := LoadMemoryFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		m, err = NewMemory(), nil
	}
	if err != nil {
		return nil, err
	}
	return &Snapshot{Memory: m, path: path}, nil
}

func (s *Snapshot) Path() string {
	return s.path
}

func (s *Snapshot) Close() error {
	if err := s.SaveFile(s.path); err != nil {
		return err
	}
	return s.Memory.Close()
}
