//go:build !js && !wasm

package index

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/himanishpuri/muzam/pkg/models"
)

// Key layout:
//
//	p/<hash>/<seq>  -> offset(8) scheme(1) batch(8) trackID
//	b/<batch>       -> trackID
//	t/<trackID>     -> ordinal(8) postings(8)
//
// An insert writes its postings in as many transactions as it needs, all
// tagged with one batch number, and then commits b/<batch> together with
// the track entry. Postings whose batch key is missing are invisible.
var (
	postingPrefix = []byte("p/")
	batchPrefix   = []byte("b/")
	trackPrefix   = []byte("t/")
	trackSeqKey   = []byte("seq/tracks")
	postingSeqKey = []byte("seq/postings")
)

const (
	seqBandwidth = 1000
	// DefaultTxnPostings bounds the postings written per transaction, well
	// under badger's transaction size limit.
	DefaultTxnPostings = 20000
	postingHeader      = 17
)

// Badger stores postings in a badger key-value store. Lookups run in one
// read-only transaction and see either all or none of an insert.
type Badger struct {
	db          *badger.DB
	writeMu     sync.Mutex
	trackSeq    *badger.Sequence
	postingSeq  *badger.Sequence
	txnPostings int
}

// OpenBadger opens (or creates) an index under dir. An empty dir keeps
// everything in memory.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index: %w", err)
	}
	trackSeq, err := db.GetSequence(trackSeqKey, seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to lease track sequence: %w", err)
	}
	postingSeq, err := db.GetSequence(postingSeqKey, seqBandwidth)
	if err != nil {
		trackSeq.Release()
		db.Close()
		return nil, fmt.Errorf("failed to lease posting sequence: %w", err)
	}
	return &Badger{db: db, trackSeq: trackSeq, postingSeq: postingSeq, txnPostings: DefaultTxnPostings}, nil
}

func postingKey(value string, seq uint64) []byte {
	key := make([]byte, 0, len(postingPrefix)+len(value)+9)
	key = append(key, postingPrefix...)
	key = append(key, value...)
	key = append(key, '/')
	return binary.BigEndian.AppendUint64(key, seq)
}

func valuePrefix(value string) []byte {
	key := make([]byte, 0, len(postingPrefix)+len(value)+1)
	key = append(key, postingPrefix...)
	key = append(key, value...)
	return append(key, '/')
}

func batchKey(batch uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, batchPrefix...), batch)
}

func trackKey(trackID string) []byte {
	return append(append([]byte{}, trackPrefix...), trackID...)
}

func encodePosting(p models.Posting, batch uint64) []byte {
	buf := make([]byte, postingHeader, postingHeader+len(p.TrackID))
	binary.BigEndian.PutUint64(buf, math.Float64bits(p.TimeOffset))
	buf[8] = byte(p.Scheme)
	binary.BigEndian.PutUint64(buf[9:], batch)
	return append(buf, p.TrackID...)
}

func decodePosting(val []byte) (models.Posting, uint64, error) {
	if len(val) < postingHeader {
		return models.Posting{}, 0, fmt.Errorf("corrupt posting of %d bytes", len(val))
	}
	return models.Posting{
		TimeOffset: math.Float64frombits(binary.BigEndian.Uint64(val)),
		Scheme:     models.Scheme(val[8]),
		TrackID:    string(val[postingHeader:]),
	}, binary.BigEndian.Uint64(val[9:]), nil
}

func decodeTrackMeta(trackID string, v []byte) (ordinal, postings uint64, err error) {
	if len(v) != 16 {
		return 0, 0, fmt.Errorf("corrupt catalog entry for %s: %d bytes", trackID, len(v))
	}
	return binary.BigEndian.Uint64(v[:8]), binary.BigEndian.Uint64(v[8:]), nil
}

func (b *Badger) Insert(ctx context.Context, trackID string, fp models.Fingerprint) error {
	if trackID == "" {
		return ErrEmptyTrackID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fp.Empty() {
		return nil
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	// Sequence leases write to the store themselves, so keys are allocated
	// before any insert transaction opens.
	ordinal, existing, found, err := b.trackMeta(trackID)
	if err != nil {
		return err
	}
	if !found {
		if ordinal, err = b.trackSeq.Next(); err != nil {
			return fmt.Errorf("failed to allocate track ordinal: %w", err)
		}
	}
	keys := make([][]byte, len(fp.Tokens))
	for i, tok := range fp.Tokens {
		seq, err := b.postingSeq.Next()
		if err != nil {
			return fmt.Errorf("failed to allocate posting key: %w", err)
		}
		keys[i] = postingKey(tok.Value, seq)
	}
	batch := binary.BigEndian.Uint64(keys[0][len(keys[0])-8:])

	for lo := 0; lo < len(keys); lo += b.txnPostings {
		hi := min(lo+b.txnPostings, len(keys))
		err := b.db.Update(func(txn *badger.Txn) error {
			for i := lo; i < hi; i++ {
				tok := fp.Tokens[i]
				val := encodePosting(models.Posting{TrackID: trackID, TimeOffset: tok.TimeOffset, Scheme: tok.Scheme}, batch)
				if err := txn.Set(keys[i], val); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			b.discard(keys[:hi])
			return fmt.Errorf("failed to insert %d postings for %s: %w", len(keys), trackID, err)
		}
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(batchKey(batch), []byte(trackID)); err != nil {
			return err
		}
		meta := make([]byte, 16)
		binary.BigEndian.PutUint64(meta, ordinal)
		binary.BigEndian.PutUint64(meta[8:], existing+uint64(len(keys)))
		return txn.Set(trackKey(trackID), meta)
	})
	if err != nil {
		b.discard(keys)
		return fmt.Errorf("failed to commit %d postings for %s: %w", len(keys), trackID, err)
	}
	return nil
}

// discard deletes postings of a batch that never committed. They are
// already invisible, so failures are ignored.
func (b *Badger) discard(keys [][]byte) {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if wb.Delete(k) != nil {
			return
		}
	}
	_ = wb.Flush()
}

func (b *Badger) trackMeta(trackID string) (ordinal, postings uint64, found bool, err error) {
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(trackKey(trackID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			ordinal, postings, err = decodeTrackMeta(trackID, v)
			return err
		})
	})
	return ordinal, postings, found, err
}

// committed reports whether batch has been committed, caching answers for
// the life of one read transaction.
type committed struct {
	txn   *badger.Txn
	known map[uint64]bool
}

func (c *committed) has(batch uint64) (bool, error) {
	if ok, seen := c.known[batch]; seen {
		return ok, nil
	}
	_, err := c.txn.Get(batchKey(batch))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		c.known[batch] = false
	case err != nil:
		return false, err
	default:
		c.known[batch] = true
	}
	return c.known[batch], nil
}

func (b *Badger) Lookup(ctx context.Context, values []string) ([]models.TrackHits, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	acc := newHitAccumulator()
	ordinals := make(map[string]int)
	err := b.db.View(func(txn *badger.Txn) error {
		batches := &committed{txn: txn, known: make(map[uint64]bool)}
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: postingPrefix})
		defer it.Close()

		seen := make(map[string]struct{}, len(values))
		for _, v := range values {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			if err := ctx.Err(); err != nil {
				return err
			}

			acc.startValue()
			prefix := valuePrefix(v)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var (
					p     models.Posting
					batch uint64
				)
				if err := it.Item().Value(func(val []byte) error {
					var derr error
					p, batch, derr = decodePosting(val)
					return derr
				}); err != nil {
					return err
				}
				ok, err := batches.has(batch)
				if err != nil {
					return err
				}
				if ok {
					acc.add(p.TrackID)
				}
			}
		}

		for id := range acc.hits {
			item, err := txn.Get(trackKey(id))
			if err != nil {
				return fmt.Errorf("track %s has postings but no catalog entry: %w", id, err)
			}
			if err := item.Value(func(v []byte) error {
				ordinal, _, err := decodeTrackMeta(id, v)
				ordinals[id] = int(ordinal)
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc.result(func(id string) int { return ordinals[id] }), nil
}

// Remove deletes every posting of trackID. It scans the whole posting
// space and is not atomic with respect to concurrent lookups.
func (b *Badger) Remove(ctx context.Context, trackID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	var doomed, batches [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: postingPrefix})
		defer it.Close()
		for it.Seek(postingPrefix); it.ValidForPrefix(postingPrefix); it.Next() {
			item := it.Item()
			match := false
			if err := item.Value(func(val []byte) error {
				match = len(val) >= postingHeader && bytes.Equal(val[postingHeader:], []byte(trackID))
				return nil
			}); err != nil {
				return err
			}
			if match {
				doomed = append(doomed, item.KeyCopy(nil))
			}
		}

		bt := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: batchPrefix})
		defer bt.Close()
		for bt.Seek(batchPrefix); bt.ValidForPrefix(batchPrefix); bt.Next() {
			item := bt.Item()
			match := false
			if err := item.Value(func(val []byte) error {
				match = bytes.Equal(val, []byte(trackID))
				return nil
			}); err != nil {
				return err
			}
			if match {
				batches = append(batches, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range append(doomed, batches...) {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Delete(trackKey(trackID)); err != nil {
		return 0, err
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush removal: %w", err)
	}
	return len(doomed), nil
}

func (b *Badger) Stats(ctx context.Context) (models.IndexStats, error) {
	var stats models.IndexStats
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: trackPrefix})
		for it.Seek(trackPrefix); it.ValidForPrefix(trackPrefix); it.Next() {
			stats.Tracks++
		}
		it.Close()

		batches := &committed{txn: txn, known: make(map[uint64]bool)}
		it = txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: postingPrefix})
		defer it.Close()
		var last []byte
		for it.Seek(postingPrefix); it.ValidForPrefix(postingPrefix); it.Next() {
			item := it.Item()
			var batch uint64
			if err := item.Value(func(val []byte) error {
				var derr error
				_, batch, derr = decodePosting(val)
				return derr
			}); err != nil {
				return err
			}
			ok, err := batches.has(batch)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			key := item.Key()
			value := key[len(postingPrefix) : len(key)-9]
			if !bytes.Equal(value, last) {
				stats.DistinctHashes++
				last = append(last[:0], value...)
			}
			stats.Postings++
		}
		return nil
	})
	return stats, err
}

func (b *Badger) Close() error {
	var errs []error
	if err := b.trackSeq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := b.postingSeq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := b.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
