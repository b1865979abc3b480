package journal

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RunRetention periodically deletes transition records older than the
// retention period. Blocks until ctx is cancelled. Pass retentionDays <= 0
// to disable.
func RunRetention(ctx context.Context, store *Store, retentionDays int) {
	if retentionDays <= 0 {
		log.Println("journal retention disabled (keep forever)")
		return
	}

	interval := 1 * time.Hour
	log.Printf("journal retention: pruning transitions older than %d days every %v", retentionDays, interval)

	prune(ctx, store, retentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(ctx, store, retentionDays)
		}
	}
}

// prune deletes both the transitions and the "runs" header documents older
// than the retention window — a run's header would otherwise accumulate
// forever even once every transition beneath it has been pruned.
func prune(ctx context.Context, store *Store, retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := store.db.Collection("transitions").DeleteMany(ctx, bson.M{
		"at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		log.Printf("journal retention: prune transitions error: %v", err)
	} else if result.DeletedCount > 0 {
		log.Printf("journal retention: pruned %d transitions older than %s", result.DeletedCount, cutoff.Format(time.DateOnly))
	}

	runResult, err := store.db.Collection("runs").DeleteMany(ctx, bson.M{
		"started_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		log.Printf("journal retention: prune runs error: %v", err)
		return
	}
	if runResult.DeletedCount > 0 {
		log.Printf("journal retention: pruned %d run headers older than %s", runResult.DeletedCount, cutoff.Format(time.DateOnly))
	}
}
