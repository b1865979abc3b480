package journal

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Transition is one recorded FSM step, the audit-trail analogue of a trade
// tick in the teacher's domain.
type Transition struct {
	RunID     string    `bson:"run_id"`
	At        time.Time `bson:"at"`
	From      string    `bson:"from"`
	To        string    `bson:"to"`
	Code      int       `bson:"code"`
	ProjectID int64     `bson:"project_id"`
}

// Recorder buffers transitions and flushes them in the background so a
// slow or unreachable journal never stalls the acquisition loop.
type Recorder struct {
	store  *Store
	runID  string
	buffer chan Transition
}

// NewRecorder starts a background flusher writing to store under runID.
// bufferSize bounds how many transitions can be queued before Record
// silently drops further ones (journal loss is acceptable; acquisition
// correctness never depends on it).
func NewRecorder(store *Store, runID string, bufferSize int) *Recorder {
	r := &Recorder{store: store, runID: runID, buffer: make(chan Transition, bufferSize)}
	go r.flushLoop()
	return r
}

// Record enqueues a transition; it never blocks the caller.
func (r *Recorder) Record(t Transition) {
	t.RunID = r.runID
	select {
	case r.buffer <- t:
	default:
		log.Println("journal: buffer full, dropping transition record")
	}
}

func (r *Recorder) flushLoop() {
	for t := range r.buffer {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := r.store.db.Collection("transitions").InsertOne(ctx, bson.M{
			"run_id":     t.RunID,
			"at":         t.At,
			"from":       t.From,
			"to":         t.To,
			"code":       t.Code,
			"project_id": t.ProjectID,
		})
		cancel()
		if err != nil {
			log.Printf("journal: insert transition failed: %v", err)
		}
	}
}

// Close stops accepting new records once the caller is done enqueuing;
// callers must ensure no further Record calls race with Close.
func (r *Recorder) Close() {
	close(r.buffer)
}
