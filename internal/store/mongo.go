package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
)

const (
	feedsCollection = "feeds"
	logsCollection  = "feed_logs"
)

// MongoStore keeps feed records in a feeds collection, one document per key,
// and audit rows in feed_logs.
type MongoStore struct {
	client *mongo.Client
	feeds  *mongo.Collection
	logs   *mongo.Collection
}

// NewMongoStore connects and pings the deployment.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client: client,
		feeds:  db.Collection(feedsCollection),
		logs:   db.Collection(logsCollection),
	}, nil
}

func keyFilter(key domain.Key) bson.M {
	return bson.M{
		"country_id": key.CountryID,
		"feed_type":  key.FeedType,
		"url":        key.URL,
	}
}

// UpsertFeed replaces the record for its key, inserting when absent.
func (s *MongoStore) UpsertFeed(ctx context.Context, rec Record) error {
	_, err := s.feeds.ReplaceOne(ctx, keyFilter(rec.Key()), rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert feed %s/%s: %w", rec.CountryID, rec.FeedType, err)
	}
	return nil
}

// FindFeed loads the record for a key.
func (s *MongoStore) FindFeed(ctx context.Context, key domain.Key) (*Record, error) {
	var rec Record
	err := s.feeds.FindOne(ctx, keyFilter(key)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find feed %s/%s: %w", key.CountryID, key.FeedType, err)
	}
	return &rec, nil
}

// AppendLog inserts one audit row.
func (s *MongoStore) AppendLog(ctx context.Context, entry LogEntry) error {
	if _, err := s.logs.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("append feed log: %w", err)
	}
	return nil
}

// Close disconnects from the deployment.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
