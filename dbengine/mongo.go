package dbengine

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements DocumentStore on a MongoDB database.
type MongoStore struct {
	db *mongo.Database
}

// ConnectMongo dials uri and returns a store bound to database name.
func ConnectMongo(ctx context.Context, uri, name string) (*MongoStore, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return &MongoStore{db: client.Database(name)}, client.Disconnect, nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

func (s *MongoStore) ReadAll(ctx context.Context, collection string) ([]Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document in %s: %w", collection, err)
		}
		docs = append(docs, Document(doc))
	}
	return docs, cursor.Err()
}

func (s *MongoStore) Drop(ctx context.Context, collection string) error {
	if err := s.db.Collection(collection).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		// Recreate the collection even when the snapshot was empty.
		return s.db.CreateCollection(ctx, collection)
	}
	payload := make([]interface{}, len(docs))
	for i, doc := range docs {
		payload[i] = doc
	}
	if _, err := s.db.Collection(collection).InsertMany(ctx, payload); err != nil {
		return fmt.Errorf("failed to insert into collection %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) RunCommand(ctx context.Context, command Document) error {
	if err := s.db.RunCommand(ctx, bson.M(command)).Err(); err != nil {
		return fmt.Errorf("failed to run database command: %w", err)
	}
	return nil
}
