/*Package postgres implements the document store on PostgreSQL.

Every collection is one table inside the configured database schema, holding
the assigned id and the document itself as jsonb. Partial updates are a
jsonb merge, so the store provides the same field-level merge semantics as
the other store implementations.
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // load database driver for postgres

	"github.com/hicsail/anchor/core/store"
)

// Store is a document store backed by a postgres database schema
type Store struct {
	db     *sql.DB
	schema string
}

// Open opens a postgres database and selects the given schema for all
// collections. The schema gets created if it does not exist yet. The
// database also gets the uuid-ossp extension loaded.
func Open(dataSourceName, schema string) (*Store, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		schema = "public"
	} else {
		if err := validateName(schema); err != nil {
			return nil, err
		}
		_, err = db.Exec(`CREATE extension IF NOT EXISTS "uuid-ossp";
CREATE schema IF NOT EXISTS ` + schema + `;
`)
		if err != nil {
			return nil, err
		}
	}
	return &Store{db: db, schema: schema}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureCollection implements store.Ensurer. It creates the collection's
// table if it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context, collection string) error {
	if err := validateName(collection); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE table IF NOT EXISTS %s."%s"
(_id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
document jsonb NOT NULL DEFAULT '{}'::jsonb
);`, s.schema, collection))
	return err
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s."%s"(_id,document) VALUES($1,$2);`, s.schema, collection),
		id, string(body))
	if err != nil {
		return nil, err
	}
	stored := store.Document{"_id": id}
	for key, value := range doc {
		if key != "_id" {
			stored[key] = value
		}
	}
	return stored, nil
}

// FindPage implements store.Store
func (s *Store) FindPage(ctx context.Context, collection string, filter store.Document,
	fields []string, sortSpec []store.SortField, skip, limit int) ([]store.Document, int, error) {

	if err := validateName(collection); err != nil {
		return nil, 0, err
	}

	where := ""
	var queryParameters []interface{}
	for key, value := range filter {
		if err := validateName(key); err != nil {
			return nil, 0, err
		}
		if where == "" {
			where = "WHERE "
		} else {
			where += "AND "
		}
		if key == "_id" {
			where += fmt.Sprintf("_id = $%d ", len(queryParameters)+1)
		} else {
			where += fmt.Sprintf("document->>'%s' = $%d ", key, len(queryParameters)+1)
		}
		queryParameters = append(queryParameters, fmt.Sprint(value))
	}

	orderBy := ""
	for _, field := range sortSpec {
		if err := validateName(field.Name); err != nil {
			return nil, 0, err
		}
		if orderBy == "" {
			orderBy = "ORDER BY "
		} else {
			orderBy += ", "
		}
		direction := "ASC"
		if field.Descending {
			direction = "DESC"
		}
		orderBy += fmt.Sprintf("document->>'%s' %s", field.Name, direction)
	}

	sqlQuery := fmt.Sprintf(`SELECT _id, document FROM %s."%s" %s%s OFFSET $%d LIMIT $%d;`,
		s.schema, collection, where, orderBy, len(queryParameters)+1, len(queryParameters)+2)

	rows, err := s.db.QueryContext(ctx, sqlQuery, append(queryParameters, skip, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []store.Document{}
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, 0, err
		}
		doc := store.Document{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, 0, err
		}
		doc["_id"] = id
		items = append(items, store.Project(doc, fields))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// the page query does not tell the total beyond the requested window,
	// hence a second count query
	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM %s."%s" %s;`, s.schema, collection, where)
	if err := s.db.QueryRowContext(ctx, countQuery, queryParameters...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// FindByIDAndUpdate implements store.Store
func (s *Store) FindByIDAndUpdate(ctx context.Context, collection string, id string, set store.Document) (store.Document, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		// not a valid id, hence certainly not an existing document
		return nil, store.ErrNotFound
	}
	body, err := json.Marshal(set)
	if err != nil {
		return nil, err
	}

	var merged []byte
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`UPDATE %s."%s" SET document = document || $2::jsonb WHERE _id = $1 RETURNING document;`,
		s.schema, collection), id, string(body)).Scan(&merged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc := store.Document{}
	if err := json.Unmarshal(merged, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = id
	return doc, nil
}

// ClearCollections drops all data of the given collections. Meant for tests.
func (s *Store) ClearCollections(ctx context.Context, collections ...string) error {
	for _, collection := range collections {
		if err := validateName(collection); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`TRUNCATE %s."%s";`, s.schema, collection)); err != nil {
			return err
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	if strings.IndexFunc(name, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) >= 0 {
		return fmt.Errorf("invalid name '%s'", name)
	}
	return nil
}
