package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-region-facts/pkg/enrich"
	"github.com/l3aro/go-region-facts/pkg/facts"
)

const storeVersion = 1

// ErrStoreVersion is returned when a fact store was written by an
// incompatible version.
var ErrStoreVersion = errors.New("unsupported fact store version")

// StoredFacts is the persisted fact table of one procedure.
type StoredFacts struct {
	DefID     string
	SessionID string
	SavedAt   time.Time
	Facts     *facts.Table
}

type storeData struct {
	Version int          `msgpack:"version"`
	Entries []storeEntry `msgpack:"entries"`
}

type storeEntry struct {
	DefID     string    `msgpack:"def_id"`
	SessionID string    `msgpack:"session_id"`
	SavedAt   time.Time `msgpack:"saved_at"`
	Facts     []byte    `msgpack:"facts"`
}

// SaveFacts writes the fact tables of bodies to w, in order.
func SaveFacts(w io.Writer, bodies []*enrich.EnrichedBody) error {
	data := storeData{Version: storeVersion, Entries: make([]storeEntry, 0, len(bodies))}
	now := time.Now().UTC()
	for _, eb := range bodies {
		var buf bytes.Buffer
		if err := eb.Facts().EncodeMsgpack(&buf); err != nil {
			return fmt.Errorf("failed to encode facts of %s: %w", eb.DefID(), err)
		}
		data.Entries = append(data.Entries, storeEntry{
			DefID:     eb.DefID(),
			SessionID: eb.SessionID(),
			SavedAt:   now,
			Facts:     buf.Bytes(),
		})
	}
	return msgpack.NewEncoder(w).Encode(&data)
}

// LoadFacts reads fact tables written by SaveFacts.
func LoadFacts(r io.Reader) ([]StoredFacts, error) {
	var data storeData
	if err := msgpack.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode fact store: %w", err)
	}
	if data.Version != storeVersion {
		return nil, fmt.Errorf("%w: %d", ErrStoreVersion, data.Version)
	}

	out := make([]StoredFacts, 0, len(data.Entries))
	for _, e := range data.Entries {
		t, err := facts.DecodeMsgpack(bytes.NewReader(e.Facts))
		if err != nil {
			return nil, fmt.Errorf("failed to decode facts of %s: %w", e.DefID, err)
		}
		out = append(out, StoredFacts{DefID: e.DefID, SessionID: e.SessionID, SavedAt: e.SavedAt, Facts: t})
	}
	return out, nil
}

// SaveFile persists the fact tables of the cached bodies to path.
func (c *BodyCache) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	if err := SaveFacts(f, c.Bodies()); err != nil {
		return err
	}
	return f.Close()
}

// LoadFile reads a fact store from path. A missing file yields no entries.
func LoadFile(path string) ([]StoredFacts, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return LoadFacts(f)
}
