package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/inaciog/reminders-app/internal/model"
	"github.com/inaciog/reminders-app/internal/repository"
)

// Entry is one [key, value] pair of a persisted collection.
type Entry[V any] struct {
	Key   string
	Value V
}

func (e Entry[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Key, e.Value})
}

func (e *Entry[V]) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("expected [key, value] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Key); err != nil {
		return fmt.Errorf("entry key: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Value); err != nil {
		return fmt.Errorf("entry %q: %w", e.Key, err)
	}
	return nil
}

// Document is the on-disk shape of the data file and of every backup.
type Document struct {
	Folders   []Entry[model.Folder]   `json:"folders"`
	Reminders []Entry[model.Reminder] `json:"reminders"`
	Tags      []Entry[int]            `json:"tags"`
	LastSaved model.Timestamp         `json:"lastSaved"`
}

func NewDocument(s repository.Snapshot, savedAt time.Time) Document {
	doc := Document{
		Folders:   make([]Entry[model.Folder], 0, len(s.Folders)),
		Reminders: make([]Entry[model.Reminder], 0, len(s.Reminders)),
		Tags:      make([]Entry[int], 0, len(s.Tags)),
		LastSaved: model.At(savedAt),
	}
	for _, f := range s.Folders {
		doc.Folders = append(doc.Folders, Entry[model.Folder]{Key: f.ID, Value: f})
	}
	for _, rem := range s.Reminders {
		doc.Reminders = append(doc.Reminders, Entry[model.Reminder]{Key: rem.ID, Value: rem})
	}
	for tag, n := range s.Tags {
		doc.Tags = append(doc.Tags, Entry[int]{Key: tag, Value: n})
	}
	slices.SortFunc(doc.Tags, func(a, b Entry[int]) int { return strings.Compare(a.Key, b.Key) })
	return doc
}

// Snapshot converts the document back into repository collections. Values
// missing an id take it from their key.
func (d Document) Snapshot() repository.Snapshot {
	s := repository.Snapshot{
		Folders:   make([]model.Folder, 0, len(d.Folders)),
		Reminders: make([]model.Reminder, 0, len(d.Reminders)),
		Tags:      make(map[string]int, len(d.Tags)),
	}
	for _, e := range d.Folders {
		f := e.Value
		if f.ID == "" {
			f.ID = e.Key
		}
		s.Folders = append(s.Folders, f)
	}
	for _, e := range d.Reminders {
		rem := e.Value
		if rem.ID == "" {
			rem.ID = e.Key
		}
		s.Reminders = append(s.Reminders, rem)
	}
	for _, e := range d.Tags {
		s.Tags[e.Key] = e.Value
	}
	return s
}

func EncodeDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeDocument(b []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	return doc, nil
}
