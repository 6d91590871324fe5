//go:build !js && !wasm

package muzam

import (
	"fmt"
	"strings"

	"github.com/himanishpuri/muzam/pkg/muzam/index"
	"github.com/himanishpuri/muzam/pkg/muzam/storage"
)

// BadgerScheme prefixes a DBPath that names a badger directory. Badger
// holds postings only; there is no catalog or history behind it.
const BadgerScheme = "badger://"

// MemoryScheme prefixes a DBPath that names an in-memory index snapshot
// file. The file is loaded when present and rewritten on Close.
const MemoryScheme = "memory://"

var ErrTrackNotFound = storage.ErrTrackNotFound

// openStore uses one database as index, and as catalog and history unless
// those were supplied separately.
func (r *Recognizer) openStore(dsn string) error {
	if dir, ok := strings.CutPrefix(dsn, BadgerScheme); ok {
		b, err := index.OpenBadger(dir)
		if err != nil {
			return fmt.Errorf("failed to open badger index: %w", err)
		}
		r.index = b
		return nil
	}

	if path, ok := strings.CutPrefix(dsn, MemoryScheme); ok {
		s, err := index.OpenSnapshot(path)
		if err != nil {
			return fmt.Errorf("failed to open index snapshot: %w", err)
		}
		r.index = s
		return nil
	}

	store, err := storage.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	r.index = store
	if r.catalog == nil {
		r.catalog = store
	}
	if r.history == nil {
		r.history = store
	}
	return nil
}
