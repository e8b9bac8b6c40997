package snapshot

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sstash/sstash/internal/logging"
)

// Restorer is the subset of *manager.Manager the reader needs at
// startup, kept narrow to avoid an import cycle (manager constructs
// the reader's caller, not the other way around).
type Restorer interface {
	Restore(name string, offHeap bool, maxKeyCount int) (RestoreTarget, error)
}

// RestoreTarget receives replayed entries for a single stash.
type RestoreTarget interface {
	Restore(key string, value []byte, expiresAtMs uint64)
}

// Reader loads every committed snapshot in a directory at startup.
type Reader struct {
	dir string
	log *logging.Logger
	now func() uint64
}

func NewReader(dir string, log *logging.Logger, now func() uint64) *Reader {
	if log == nil {
		log = logging.New("snapshot", logging.Info)
	}
	return &Reader{dir: dir, log: log.Named("reader"), now: now}
}

// LoadAll restores every "*.snap" file in the directory through
// restorer, matching the startup protocol: metadata first, then create
// the stash, then stream in records until EOF or a malformed trailing
// record.
func (r *Reader) LoadAll(restorer Restorer) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap") {
			continue
		}
		if err := r.loadOne(filepath.Join(r.dir, e.Name()), restorer); err != nil {
			r.log.Warnf("loading snapshot %s: %v", e.Name(), err)
		}
	}
	return nil
}

func (r *Reader) loadOne(path string, restorer Restorer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	h, err := readHeader(br)
	if err != nil {
		return err
	}

	target, err := restorer.Restore(h.Name, h.OffHeap, int(h.MaxKeyCount))
	if err != nil {
		return err
	}

	now := r.now()
	count := 0
	for {
		rec, err := readRecord(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Malformed trailing record: stop reading, keep what loaded.
			r.log.Warnf("truncating restore of %s after %d records: %v", h.Name, count, err)
			break
		}

		if rec.ExpiresAt != 0 {
			if rec.ExpiresAt <= now {
				continue
			}
			target.Restore(rec.Key, rec.Value, rec.ExpiresAt)
		} else {
			target.Restore(rec.Key, rec.Value, 0)
		}
		count++
	}
	r.log.Infof("restored %d entries for stash %s", count, h.Name)
	return nil
}
