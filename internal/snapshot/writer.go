package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sstash/sstash/internal/logging"
)

// dirtyStash is the subset of *stash.Stash the writer needs, kept
// narrow so the snapshot package stays decoupled from stash internals
// beyond its public surface.
type dirtyStash interface {
	Dirty() bool
	ClearDirty()
	KeyCount() (int, error)
	Range(fn func(key string, value []byte, expiresAtMs uint64) bool) error
}

// Writer persists one stash to <dir>/<name>.snap via a staging file and
// an atomic rename, matching the format described by the wire spec.
type Writer struct {
	dir string
	log *logging.Logger
}

func NewWriter(dir string, log *logging.Logger) *Writer {
	if log == nil {
		log = logging.New("snapshot", logging.Info)
	}
	return &Writer{dir: dir, log: log.Named("writer")}
}

func (w *Writer) stagingPath(name string) string {
	return filepath.Join(w.dir, name+".snap.staging")
}

func (w *Writer) committedPath(name string) string {
	return filepath.Join(w.dir, name+".snap")
}

// WriteIfDirty writes a snapshot only if the stash has been mutated
// since the last successful write, per the scheduler's tick contract.
// It leaves backup_dirty set on any I/O failure so the next tick
// retries.
func (w *Writer) WriteIfDirty(name string, maxKeyCount int, offHeap bool, s dirtyStash) error {
	if !s.Dirty() {
		return nil
	}
	if err := w.write(name, maxKeyCount, offHeap, s); err != nil {
		w.log.Warnf("snapshot write failed for %s, will retry next tick: %v", name, err)
		return err
	}
	s.ClearDirty()
	return nil
}

func (w *Writer) write(name string, maxKeyCount int, offHeap bool, s dirtyStash) error {
	stagingPath := w.stagingPath(name)
	f, err := os.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening staging file: %w", err)
	}

	bw := bufio.NewWriterSize(f, 1<<20)
	if err := writeHeader(bw, header{Name: name, MaxKeyCount: uint64(maxKeyCount), OffHeap: offHeap}); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing header: %w", err)
	}

	var rangeErr error
	if err := s.Range(func(key string, value []byte, expiresAtMs uint64) bool {
		if err := writeRecord(bw, record{Key: key, Value: value, ExpiresAt: expiresAtMs}); err != nil {
			rangeErr = err
			return false
		}
		return true
	}); err != nil && rangeErr == nil {
		rangeErr = err
	}
	if rangeErr != nil {
		_ = f.Close()
		return fmt.Errorf("writing records: %w", rangeErr)
	}

	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flushing staging file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsyncing staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing staging file: %w", err)
	}

	if err := os.Rename(stagingPath, w.committedPath(name)); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Delete removes both halves of a stash's snapshot file pair, called
// on DROP.
func (w *Writer) Delete(name string) {
	_ = os.Remove(w.stagingPath(name))
	_ = os.Remove(w.committedPath(name))
}
