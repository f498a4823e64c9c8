package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/manpreetbhatti/menuroom/internal/menu"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const roomsCollection = "rooms"

// Mongo keeps one document per room, keyed by room id.
type Mongo struct {
	client *mongo.Client
	rooms  *mongo.Collection
}

func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	rooms := client.Database(database).Collection(roomsCollection)
	_, err = rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "last_updated", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create rooms index: %w", err)
	}

	return &Mongo{client: client, rooms: rooms}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Get(ctx context.Context, roomID string) (*menu.Document, error) {
	var doc menu.Document
	err := m.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (m *Mongo) Replace(ctx context.Context, roomID string, doc *menu.Document) error {
	result, err := m.rooms.ReplaceOne(ctx, bson.M{"_id": roomID}, doc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Create(ctx context.Context, doc *menu.Document) error {
	_, err := m.rooms.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	return err
}

func (m *Mongo) List(ctx context.Context, limit, offset int) ([]menu.Summary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "last_updated", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"items": 0, "addons": 0, "chat_messages": 0})

	cursor, err := m.rooms.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rooms := []menu.Summary{}
	for cursor.Next(ctx) {
		var doc menu.Document
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rooms = append(rooms, doc.Summary())
	}
	return rooms, cursor.Err()
}
