package journal

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// TransitionFilter controls which transitions Query returns.
type TransitionFilter struct {
	RunID string
	Limit int
	From  *time.Time
}

// Query returns matching transitions, most recent first, for offline
// inspection of a completed or failed acquisition run.
func (s *Store) Query(ctx context.Context, f TransitionFilter) ([]Transition, error) {
	filter := bson.M{}
	if f.RunID != "" {
		filter["run_id"] = f.RunID
	}
	if f.From != nil {
		filter["at"] = bson.M{"$gte": *f.From}
	}

	limit := int64(f.Limit)
	if limit <= 0 {
		limit = 200
	}

	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit)
	cur, err := s.db.Collection("transitions").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer cur.Close(ctx)

	var out []Transition
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode transitions: %w", err)
	}
	return out, nil
}
