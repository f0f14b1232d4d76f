// Package vpapitest provides an in-memory stand-in for the entity
// store API, with just enough filter semantics for the sync engine's
// queries and hooks for fault injection.
package vpapitest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"nrsr-backend/lib/timezone"
	"nrsr-backend/lib/vpapi"
)

type Store struct {
	resources map[string][]map[string]any
	nextID    int

	// Now stands in for the store's clock stamping updated_at, tests
	// override it to age records.
	Now func() time.Time

	// FailNextCreate makes the next Create on the given resource fail
	// with the stored error, then clears itself. Used to exercise
	// compensation paths.
	FailNextCreate map[string]error

	// CascadeDeletes mirrors the real store's cascade policy: deleting
	// a record of the key resource deletes records of the value
	// resource referencing it through the named field.
	CascadeDeletes map[string]Cascade
}

type Cascade struct {
	Resource string
	Field    string
}

func New() *Store {
	return &Store{
		resources:      map[string][]map[string]any{},
		nextID:         1,
		Now:            timezone.Now,
		FailNextCreate: map[string]error{},
		CascadeDeletes: map[string]Cascade{
			"vote-events": {Resource: "votes", Field: "vote_event_id"},
		},
	}
}

func (s *Store) stamp() string {
	return s.Now().Format("2006-01-02 15:04:05")
}

func toDoc(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	err = json.Unmarshal(raw, &m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodeInto(src any, out any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// lookup resolves a possibly dotted field path against a record. When
// an intermediate value is a list, every element is tried and all hits
// are returned (the store's `sources.url` filter works this way).
func lookup(record any, path string) []any {
	field, rest, nested := strings.Cut(path, ".")

	switch v := record.(type) {
	case map[string]any:
		inner, ok := v[field]
		if !ok {
			return nil
		}
		if !nested {
			return []any{inner}
		}
		return lookup(inner, rest)
	case []any:
		var hits []any
		for _, item := range v {
			hits = append(hits, lookup(item, path)...)
		}
		return hits
	}
	return nil
}

func matchesSubset(element any, value map[string]any) bool {
	m, ok := element.(map[string]any)
	if !ok {
		return false
	}
	for k, want := range value {
		if fmt.Sprint(m[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func (s *Store) matches(record map[string]any, where []vpapi.Condition) (bool, error) {
	for _, c := range where {
		switch c.Op {
		case vpapi.OpEq:
			hits := lookup(record, c.Field)
			ok := false
			for _, h := range hits {
				if fmt.Sprint(h) == fmt.Sprint(c.Value) {
					ok = true
					break
				}
			}
			if !ok {
				return false, nil
			}
		case vpapi.OpElemMatch:
			var value map[string]any
			err := decodeInto(c.Value, &value)
			if err != nil {
				return false, err
			}
			list, _ := record[c.Field].([]any)
			ok := false
			for _, element := range list {
				if matchesSubset(element, value) {
					ok = true
					break
				}
			}
			if !ok {
				return false, nil
			}
		case vpapi.OpLt:
			hits := lookup(record, c.Field)
			if len(hits) == 0 {
				return false, nil
			}
			if !(fmt.Sprint(hits[0]) < fmt.Sprint(c.Value)) {
				return false, nil
			}
		case vpapi.OpEmpty:
			v, ok := record[c.Field]
			if ok && v != nil && v != "" {
				return false, nil
			}
		default:
			return false, fmt.Errorf("vpapitest: unsupported op %q", c.Op)
		}
	}
	return true, nil
}

func (s *Store) query(resource string, q vpapi.Query) ([]map[string]any, error) {
	var result []map[string]any
	for _, record := range s.resources[resource] {
		ok, err := s.matches(record, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, record)
		}
	}

	for i := len(q.Sort) - 1; i >= 0; i-- {
		key := q.Sort[i]
		sort.SliceStable(result, func(a, b int) bool {
			av := fmt.Sprint(result[a][key.Field])
			bv := fmt.Sprint(result[b][key.Field])
			if key.Desc {
				return av > bv
			}
			return av < bv
		})
	}
	return result, nil
}

func (s *Store) GetFirst(ctx context.Context, resource string, q vpapi.Query, out any) (bool, error) {
	result, err := s.query(resource, q)
	if err != nil {
		return false, err
	}
	if len(result) == 0 {
		return false, nil
	}
	if out != nil {
		err = decodeInto(result[0], out)
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) GetAll(ctx context.Context, resource string, q vpapi.Query, out any) error {
	result, err := s.query(resource, q)
	if err != nil {
		return err
	}
	if result == nil {
		result = []map[string]any{}
	}
	return decodeInto(result, out)
}

func (s *Store) Create(ctx context.Context, resource string, doc any) (string, error) {
	if err := s.FailNextCreate[resource]; err != nil {
		delete(s.FailNextCreate, resource)
		return "", err
	}

	record, err := toDoc(doc)
	if err != nil {
		return "", err
	}
	id := strconv.Itoa(s.nextID)
	s.nextID++
	record["id"] = id
	record["updated_at"] = s.stamp()
	s.resources[resource] = append(s.resources[resource], record)
	return id, nil
}

func (s *Store) Replace(ctx context.Context, resource, id string, doc any, effectiveDate string) error {
	record, err := toDoc(doc)
	if err != nil {
		return err
	}
	for i, existing := range s.resources[resource] {
		if existing["id"] == id {
			record["id"] = id
			record["updated_at"] = s.stamp()
			s.resources[resource][i] = record
			return nil
		}
	}
	return fmt.Errorf("vpapitest: no %s record with id %s", resource, id)
}

func (s *Store) Patch(ctx context.Context, resource, id string, partial map[string]any) error {
	for _, existing := range s.resources[resource] {
		if existing["id"] == id {
			for k, v := range partial {
				existing[k] = v
			}
			existing["updated_at"] = s.stamp()
			return nil
		}
	}
	return fmt.Errorf("vpapitest: no %s record with id %s", resource, id)
}

func (s *Store) Delete(ctx context.Context, resource, id string) error {
	records := s.resources[resource]
	for i, existing := range records {
		if existing["id"] == id {
			s.resources[resource] = append(records[:i:i], records[i+1:]...)
			if cascade, ok := s.CascadeDeletes[resource]; ok {
				s.deleteWhere(cascade.Resource, cascade.Field, id)
			}
			return nil
		}
	}
	return fmt.Errorf("vpapitest: no %s record with id %s", resource, id)
}

func (s *Store) deleteWhere(resource, field, value string) {
	var kept []map[string]any
	for _, record := range s.resources[resource] {
		if fmt.Sprint(record[field]) != value {
			kept = append(kept, record)
		}
	}
	s.resources[resource] = kept
}

// Count reports how many records a resource holds.
func (s *Store) Count(resource string) int {
	return len(s.resources[resource])
}

// Records decodes all records of a resource into out (a pointer to a
// slice), in insertion order.
func (s *Store) Records(resource string, out any) error {
	return decodeInto(s.resources[resource], out)
}

// Age rewrites a record's updated_at, tests use it to push records
// outside the staleness grace window.
func (s *Store) Age(resource, id string, t time.Time) error {
	for _, existing := range s.resources[resource] {
		if existing["id"] == id {
			existing["updated_at"] = t.Format("2006-01-02 15:04:05")
			return nil
		}
	}
	return fmt.Errorf("vpapitest: no %s record with id %s", resource, id)
}
