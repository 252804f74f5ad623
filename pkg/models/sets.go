package models

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringSet persists as a Postgres text[] via lib/pq, and provides set
// semantics (dedup, membership) over the wire shape spec.md describes as
// `set<string>`.
type StringSet map[string]struct{}

// NewStringSet builds a StringSet from a slice, deduplicating.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Add(v string) { s[v] = struct{}{} }

func (s StringSet) Remove(v string) { delete(s, v) }

// Slice returns the set's members in stable sorted order.
func (s StringSet) Slice() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) Value() (driver.Value, error) {
	return pq.Array(s.Slice()).Value()
}

func (s *StringSet) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*s = NewStringSet([]string(arr)...)
	return nil
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	slice := s.Slice()
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range slice {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q", v)
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

// UUIDSet is the dependency-set analogue of StringSet.
type UUIDSet map[uuid.UUID]struct{}

func NewUUIDSet(values ...uuid.UUID) UUIDSet {
	s := make(UUIDSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s UUIDSet) Has(v uuid.UUID) bool {
	_, ok := s[v]
	return ok
}

func (s UUIDSet) Slice() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
