// Package journal persists an audit trail of FSM transitions for
// post-mortem debugging. It is deliberately not on the acquisition hot
// path — spec.md §6 states "persisted state: none during acquisition" —
// so every write here is fire-and-forget and a journal outage never
// blocks or alters the FSM's own decisions. Adapted from
// ndrandal-feed-simulator/internal/persist's store/schema/retention shape.
package journal

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Store wraps the MongoDB client and database holding the transition log.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore connects to MongoDB. The URI should include the database name
// (e.g. mongodb://localhost:27017/ticketbot); "ticketbot" is used if the
// URI carries none.
func NewStore(ctx context.Context, uri string) (*Store, error) {
	clientOpts := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	dbName := "ticketbot"
	if u, err := url.Parse(uri); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			dbName = name
		}
	}

	log.Printf("journal: connected to MongoDB (db=%s)", dbName)
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) {
	s.client.Disconnect(ctx)
}

// DB returns the underlying mongo.Database, for callers needing direct
// collection access (e.g. tests seeding fixtures).
func (s *Store) DB() *mongo.Database {
	return s.db
}

// Migrate ensures the journal's indexes exist.
func (s *Store) Migrate(ctx context.Context) error {
	return EnsureIndexes(ctx, s.db)
}

// RunStarted upserts the "runs" header document a Recorder's transitions
// attach to via run_id — schema.go's unique index on "runs" otherwise never
// gets a document to enforce uniqueness against.
func (s *Store) RunStarted(ctx context.Context, runID string, projectID int64) error {
	_, err := s.db.Collection("runs").UpdateOne(ctx,
		bson.M{"run_id": runID},
		bson.M{"$set": bson.M{
			"run_id":     runID,
			"project_id": projectID,
			"started_at": time.Now(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RunFinished records the terminal outcome ("done", "fatal", "error") of a
// run against its "runs" header document, so an offline query can tell a
// run that reached Done from one that errored out without replaying its
// full transition history.
func (s *Store) RunFinished(ctx context.Context, runID, outcome string) error {
	_, err := s.db.Collection("runs").UpdateOne(ctx,
		bson.M{"run_id": runID},
		bson.M{"$set": bson.M{
			"outcome":     outcome,
			"finished_at": time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}
