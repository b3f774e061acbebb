/*Package store defines the abstract document store the generic backend
operates on, plus the helpers shared by its implementations.

A store keeps schemaless documents in named collections. Documents are plain
maps; the store assigns the unique "_id" on insert. The concrete store and
its connection lifecycle are collaborators of the backend, selected by the
service at startup.
*/
package store

import (
	"context"
	"errors"
	"strings"
)

// Document is one persisted record of a resource
type Document map[string]interface{}

// SortField is one element of a sort specification
type SortField struct {
	Name       string
	Descending bool
}

// ErrNotFound is returned when an update target does not exist
var ErrNotFound = errors.New("document not found")

// Store is the backing document store of the generic backend.
//
// All calls take the request context; implementations must honor
// cancellation so that in-flight calls of disconnected callers are
// abandoned rather than run to completion.
type Store interface {
	// Insert persists doc as a new document in the collection, assigns a
	// fresh unique "_id" and returns the document exactly as persisted.
	Insert(ctx context.Context, collection string, doc Document) (Document, error)

	// FindPage returns one page of the collection plus the total number of
	// documents matching the filter. Filter fields are matched by equality.
	// An empty fields list means all fields. A skip beyond the total yields
	// an empty page with the correct total.
	FindPage(ctx context.Context, collection string, filter Document,
		fields []string, sort []SortField, skip, limit int) ([]Document, int, error)

	// FindByIDAndUpdate sets the given fields on the document identified by
	// id and returns the resulting fully-merged document. It returns
	// ErrNotFound if no such document exists.
	FindByIDAndUpdate(ctx context.Context, collection string, id string, set Document) (Document, error)
}

// Ensurer is implemented by stores which need per-collection setup, such as
// table creation in SQL-backed stores. The backend calls EnsureCollection
// for every registered resource at startup.
type Ensurer interface {
	EnsureCollection(ctx context.Context, collection string) error
}

// ParseSort parses a sort query string into a sort specification. Fields are
// separated by comma or space, a '-' prefix requests descending order.
// Example: "-createdAt,name".
func ParseSort(s string) []SortField {
	var sort []SortField
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		field := SortField{Name: name}
		if strings.HasPrefix(name, "-") {
			field = SortField{Name: name[1:], Descending: true}
		}
		if field.Name != "" {
			sort = append(sort, field)
		}
	}
	return sort
}

// ParseFields parses a projection query string into a list of field names,
// separated by comma or space. Example: "name,color".
func ParseFields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// Project reduces doc to the requested fields. The "_id" field is always
// retained. An empty fields list returns the document unchanged.
func Project(doc Document, fields []string) Document {
	if len(fields) == 0 {
		return doc
	}
	projected := Document{}
	if id, ok := doc["_id"]; ok {
		projected["_id"] = id
	}
	for _, field := range fields {
		if value, ok := doc[field]; ok {
			projected[field] = value
		}
	}
	return projected
}
