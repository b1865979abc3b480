package journal

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates idempotent indexes on the journal's collections.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type idx struct {
		collection string
		model      mongo.IndexModel
	}

	indexes := []idx{
		{
			collection: "transitions",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "at", Value: 1}},
			},
		},
		{
			collection: "transitions",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "at", Value: -1}},
			},
		},
		{
			collection: "runs",
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "run_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for _, i := range indexes {
		if _, err := db.Collection(i.collection).Indexes().CreateOne(ctx, i.model); err != nil {
			return fmt.Errorf("create index on %s: %w", i.collection, err)
		}
	}

	log.Println("journal: MongoDB indexes ensured")
	return nil
}
