package state

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/sasha-s/go-deadlock"
)

// ErrKeyExists is returned by Put when the key was already written.
// State is append-only within a single run.
var ErrKeyExists = errors.New("key already exists")

// ErrKeyNotFound is returned when a key is absent from the store.
var ErrKeyNotFound = errors.New("key not found")

// Metadata records the provenance of one entry.
type Metadata struct {
	// WrittenBy names the stage (or caller) that wrote the entry.
	WrittenBy string
	// WrittenAt is the time the entry was written.
	WrittenAt time.Time
}

type entry struct {
	typ   reflect.Type
	value any
	meta  Metadata
}

// Store is a threadsafe, type-aware, append-only key-value store.
type Store struct {
	mu    deadlock.RWMutex
	data  map[string]entry
	order []string
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]entry)}
}

// Put stores a value under key, capturing its concrete type. It fails
// with ErrKeyExists if the key was already written.
func (s *Store) Put(key string, value any) error {
	return s.PutFrom(key, value, "")
}

// PutFrom stores a value under key with provenance naming the writer.
func (s *Store) PutFrom(key string, value any, writtenBy string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return fmt.Errorf("putting %q: %w", key, ErrKeyExists)
	}

	var typ reflect.Type
	if value != nil {
		typ = reflect.TypeOf(value)
	}
	s.data[key] = entry{
		typ:   typ,
		value: value,
		meta:  Metadata{WrittenBy: writtenBy, WrittenAt: time.Now()},
	}
	s.order = append(s.order, key)
	return nil
}

// Get retrieves a value of type T for the given key.
func Get[T any](s *Store, key string) (T, error) {
	var zero T
	if key == "" {
		return zero, errors.New("key cannot be empty")
	}

	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("getting %q: %w", key, ErrKeyNotFound)
	}

	v, ok := e.value.(T)
	if !ok {
		return zero, fmt.Errorf("key %q holds %v, not %v", key, e.typ, reflect.TypeOf(zero))
	}
	return v, nil
}

// GetOrDefault retrieves a value of type T, falling back to defaultValue
// when the key is absent or holds a different type.
func GetOrDefault[T any](s *Store, key string, defaultValue T) T {
	v, err := Get[T](s, key)
	if err != nil {
		return defaultValue
	}
	return v
}

// Value retrieves the raw value for a key.
func (s *Store) Value(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Has reports whether the key has been written.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Keys returns all keys in insertion order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys
}

// Count returns the number of entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Provenance returns the metadata recorded for a key.
func (s *Store) Provenance(key string) (Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok {
		return Metadata{}, false
	}
	return e.meta, true
}

// Snapshot returns a shallow copy of the store's contents keyed by name.
// Values are the stored references; callers must treat them as read-only.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, e := range s.data {
		out[k] = e.value
	}
	return out
}

// KeysByType returns the keys whose values are assignable to T, in
// insertion order.
func KeysByType[T any](s *Store) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target := reflect.TypeOf((*T)(nil)).Elem()
	var keys []string
	for _, k := range s.order {
		e := s.data[k]
		if e.typ == nil {
			continue
		}
		if e.typ == target || (target.Kind() == reflect.Interface && e.typ.Implements(target)) {
			keys = append(keys, k)
		}
	}
	return keys
}

// TypeSchema returns a JSON Schema describing the concrete type stored
// under key. Useful for debugging and for documenting the key/type table
// of a pipeline.
func (s *Store) TypeSchema(key string) (*jsonschema.Schema, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("schema for %q: %w", key, ErrKeyNotFound)
	}
	if e.value == nil {
		return nil, fmt.Errorf("schema for %q: value is nil", key)
	}

	reflector := &jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(e.value), nil
}
