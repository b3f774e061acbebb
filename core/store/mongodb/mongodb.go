/*Package mongodb implements the document store on MongoDB.
 */
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hicsail/anchor/core/store"
)

// Store is a document store backed by a MongoDB database
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect connects to the MongoDB instance at uri and returns a store on
// the named database. It pings the server before returning.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("cannot reach mongodb: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// New returns a store on the passed database
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Close disconnects from the server
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	stored := store.Document{"_id": uuid.New().String()}
	for key, value := range doc {
		if key != "_id" {
			stored[key] = value
		}
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// FindPage implements store.Store
func (s *Store) FindPage(ctx context.Context, collection string, filter store.Document,
	fields []string, sortSpec []store.SortField, skip, limit int) ([]store.Document, int, error) {

	if filter == nil {
		filter = store.Document{}
	}
	opts := options.Find().SetSkip(int64(skip)).SetLimit(int64(limit))
	if len(sortSpec) > 0 {
		sort := bson.D{}
		for _, field := range sortSpec {
			order := 1
			if field.Descending {
				order = -1
			}
			sort = append(sort, bson.E{Key: field.Name, Value: order})
		}
		opts.SetSort(sort)
	}
	if len(fields) > 0 {
		projection := bson.D{}
		for _, field := range fields {
			projection = append(projection, bson.E{Key: field, Value: 1})
		}
		opts.SetProjection(projection)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := []store.Document{}
	if err = cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}

	total, err := s.db.Collection(collection).CountDocuments(ctx, bson.M(filter))
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

// FindByIDAndUpdate implements store.Store
func (s *Store) FindByIDAndUpdate(ctx context.Context, collection string, id string, set store.Document) (store.Document, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	result := s.db.Collection(collection).FindOneAndUpdate(ctx,
		bson.M{"_id": id}, bson.M{"$set": bson.M(set)}, opts)

	var doc store.Document
	err := result.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}
