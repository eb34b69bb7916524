// Package models defines the Worksheet record shared by the journal client,
// the sync engine and the remote store.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/simonexmachina/the-work/internal/timex"
)

// Document keys owned by the sync layer. Everything else in a worksheet
// document is an application field and is passed through unchanged.
const (
	KeyID        = "id"
	KeyOwnerID   = "ownerId"
	KeyUpdatedAt = "updatedAt"
	KeyDeleted   = "deleted"
	KeyDeletedAt = "deletedAt"
	KeySyncedAt  = "syncedAt"
)

var reservedKeys = []string{KeyID, KeyOwnerID, KeyUpdatedAt, KeyDeleted, KeyDeletedAt, KeySyncedAt}

// Worksheet is the synchronized unit.
type Worksheet struct {
	// ID is client-generated at creation and never reassigned.
	ID string

	// OwnerID is stamped when the record is persisted remotely.
	OwnerID string

	// UpdatedAt is refreshed by the writer on every mutation and is the
	// only ordering signal used for conflict resolution.
	UpdatedAt time.Time

	// Deleted marks the record as a tombstone.
	Deleted   bool
	DeletedAt *time.Time

	// SyncedAt is the time of the last successful remote write. Informational.
	SyncedAt *time.Time

	// Fields holds the application payload, opaque to the sync layer.
	Fields map[string]any
}

// Clone returns a copy that can be mutated without touching w. Field values
// are copied shallowly.
func (w *Worksheet) Clone() *Worksheet {
	c := *w
	if w.DeletedAt != nil {
		t := *w.DeletedAt
		c.DeletedAt = &t
	}
	if w.SyncedAt != nil {
		t := *w.SyncedAt
		c.SyncedAt = &t
	}
	if w.Fields != nil {
		c.Fields = maps.Clone(w.Fields)
	}
	return &c
}

// Touch bumps UpdatedAt so the mutation wins reconciliation.
func (w *Worksheet) Touch(now time.Time) {
	w.UpdatedAt = timex.Stamp(now)
}

// MarkDeleted turns w into a tombstone stamped at now.
func (w *Worksheet) MarkDeleted(now time.Time) {
	now = timex.Stamp(now)
	w.Deleted = true
	w.DeletedAt = &now
	w.UpdatedAt = now
}

// NewerThan reports whether w was updated strictly after other.
func (w *Worksheet) NewerThan(other *Worksheet) bool {
	return w.UpdatedAt.After(other.UpdatedAt)
}

// Field returns an application field as a string, or "" if absent.
func (w *Worksheet) Field(name string) string {
	if w.Fields == nil {
		return ""
	}
	switch v := w.Fields[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// ToMap flattens w into a single document: sync keys next to the
// application fields. Nil timestamps are omitted.
func (w *Worksheet) ToMap() map[string]any {
	m := make(map[string]any, len(w.Fields)+len(reservedKeys))
	for k, v := range w.Fields {
		m[k] = v
	}
	for _, k := range reservedKeys {
		delete(m, k)
	}

	m[KeyID] = w.ID
	if w.OwnerID != "" {
		m[KeyOwnerID] = w.OwnerID
	}
	if !w.UpdatedAt.IsZero() {
		m[KeyUpdatedAt] = timex.FormatTimestamp(w.UpdatedAt)
	}
	m[KeyDeleted] = w.Deleted
	if w.DeletedAt != nil {
		m[KeyDeletedAt] = timex.FormatTimestamp(*w.DeletedAt)
	}
	if w.SyncedAt != nil {
		m[KeySyncedAt] = timex.FormatTimestamp(*w.SyncedAt)
	}
	return m
}

// FromMap is the inverse of ToMap. Unknown keys become application fields.
func FromMap(m map[string]any) (*Worksheet, error) {
	w := &Worksheet{Fields: make(map[string]any)}

	for k, v := range m {
		switch k {
		case KeyID:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("worksheet %s: expected string, got %T", k, v)
			}
			w.ID = s
		case KeyOwnerID:
			if v != nil {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("worksheet %s: expected string, got %T", k, v)
				}
				w.OwnerID = s
			}
		case KeyDeleted:
			if v != nil {
				b, ok := v.(bool)
				if !ok {
					return nil, fmt.Errorf("worksheet %s: expected bool, got %T", k, v)
				}
				w.Deleted = b
			}
		case KeyUpdatedAt:
			t, err := parseTimeValue(k, v)
			if err != nil {
				return nil, err
			}
			if t != nil {
				w.UpdatedAt = *t
			}
		case KeyDeletedAt:
			t, err := parseTimeValue(k, v)
			if err != nil {
				return nil, err
			}
			w.DeletedAt = t
		case KeySyncedAt:
			t, err := parseTimeValue(k, v)
			if err != nil {
				return nil, err
			}
			w.SyncedAt = t
		default:
			w.Fields[k] = v
		}
	}
	return w, nil
}

func parseTimeValue(key string, v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("worksheet %s: expected timestamp string, got %T", key, v)
	}
	if s == "" {
		return nil, nil
	}
	t, err := timex.ParseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("worksheet %s: %w", key, err)
	}
	return &t, nil
}

func (w Worksheet) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.ToMap())
}

func (w *Worksheet) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*w = *parsed
	return nil
}

// IndexByID maps records by id. Later duplicates win.
func IndexByID(ws []Worksheet) map[string]*Worksheet {
	idx := make(map[string]*Worksheet, len(ws))
	for i := range ws {
		idx[ws[i].ID] = &ws[i]
	}
	return idx
}
