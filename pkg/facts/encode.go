package facts

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// snapshot is the serialized form of a table: relation name to tuples.
type snapshot struct {
	Version   int                   `json:"version" yaml:"version" msgpack:"version"`
	Relations map[string][][]uint32 `json:"relations" yaml:"relations" msgpack:"relations"`
}

const snapshotVersion = 1

func (t *Table) snapshot() snapshot {
	s := snapshot{Version: snapshotVersion, Relations: make(map[string][][]uint32)}
	for _, rel := range t.Relations() {
		s.Relations[string(rel)] = t.Rows(rel)
	}
	return s
}

func fromSnapshot(s snapshot) (*Table, error) {
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported fact table version %d", s.Version)
	}
	t := NewTable()
	for _, rel := range Order {
		for _, row := range s.Relations[string(rel)] {
			if err := t.Insert(Fact{Relation: rel, Args: row}); err != nil {
				return nil, err
			}
		}
	}
	for name := range s.Relations {
		if _, ok := Schema[Relation(name)]; !ok {
			return nil, fmt.Errorf("unknown relation %q", name)
		}
	}
	return t, nil
}

// EncodeMsgpack writes t to w in MessagePack.
func (t *Table) EncodeMsgpack(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(t.snapshot()); err != nil {
		return fmt.Errorf("failed to encode fact table: %w", err)
	}
	return nil
}

// DecodeMsgpack reads a table written by EncodeMsgpack.
func DecodeMsgpack(r io.Reader) (*Table, error) {
	var s snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode fact table: %w", err)
	}
	return fromSnapshot(s)
}

// MarshalJSON encodes the table as relation name to tuples.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.snapshot())
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := fromSnapshot(s)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

// MarshalYAML encodes the table as relation name to tuples.
func (t *Table) MarshalYAML() (interface{}, error) {
	return t.snapshot(), nil
}

// UnmarshalYAML decodes the form written by MarshalYAML.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	var s snapshot
	if err := node.Decode(&s); err != nil {
		return err
	}
	decoded, err := fromSnapshot(s)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}
