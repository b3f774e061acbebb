/*Package inmem provides an in-process document store.

The store keeps all documents in memory and implements the full store
contract. It backs the unit tests and the runnable examples; it is not meant
for production use.
*/
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/google/uuid"

	"github.com/hicsail/anchor/core/store"
)

// Store is an in-memory document store
type Store struct {
	mutex       sync.RWMutex
	collections map[string][]store.Document
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{collections: make(map[string][]store.Document)}
}

// clone deep-copies a document through a JSON round trip, so callers can
// never alias the store's internal state.
func clone(doc store.Document) store.Document {
	data, _ := json.Marshal(doc)
	copy := store.Document{}
	json.Unmarshal(data, &copy)
	return copy
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := clone(doc)
	stored["_id"] = uuid.New().String()

	s.mutex.Lock()
	s.collections[collection] = append(s.collections[collection], stored)
	s.mutex.Unlock()

	return clone(stored), nil
}

// FindPage implements store.Store
func (s *Store) FindPage(ctx context.Context, collection string, filter store.Document,
	fields []string, sortSpec []store.SortField, skip, limit int) ([]store.Document, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	// matching documents are cloned while the read lock is held, so a
	// concurrent update cannot touch what sort and projection read below
	s.mutex.RLock()
	var matches []store.Document
	for _, doc := range s.collections[collection] {
		if matchesFilter(doc, filter) {
			matches = append(matches, clone(doc))
		}
	}
	s.mutex.RUnlock()

	sortDocuments(matches, sortSpec)

	total := len(matches)
	items := []store.Document{}
	for i := skip; i < total && len(items) < limit; i++ {
		items = append(items, store.Project(matches[i], fields))
	}
	return items, total, nil
}

// FindByIDAndUpdate implements store.Store
func (s *Store) FindByIDAndUpdate(ctx context.Context, collection string, id string, set store.Document) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, doc := range s.collections[collection] {
		if doc["_id"] == id {
			for key, value := range clone(set) {
				doc[key] = value
			}
			return clone(doc), nil
		}
	}
	return nil, store.ErrNotFound
}

func matchesFilter(doc store.Document, filter store.Document) bool {
	for key, want := range filter {
		have, ok := doc[key]
		if !ok {
			return false
		}
		if have != want && fmt.Sprint(have) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// sortDocuments sorts in place, by the given fields in order of precedence.
// The sort is stable, so documents otherwise equal keep insertion order.
func sortDocuments(docs []store.Document, sortSpec []store.SortField) {
	if len(sortSpec) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range sortSpec {
			c := compareValues(docs[i][field.Name], docs[j][field.Name])
			if c == 0 {
				continue
			}
			if field.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareValues(a, b interface{}) int {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as := fmt.Sprint(a)
	bs := fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}
