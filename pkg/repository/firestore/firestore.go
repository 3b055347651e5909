package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ackbot/pkg/domain/interfaces"
	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const pendingChecksCollection = "pending_checks"

// Firestore stores the retry queue as one document per message reference
type Firestore struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.RetryQueue = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client", goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client: client,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// pendingCheckDoc is the Firestore persistence model
type pendingCheckDoc struct {
	Channel   string    `firestore:"channel"`
	Timestamp string    `firestore:"timestamp"`
	Score     time.Time `firestore:"score"`
}

func (f *Firestore) collection() *firestore.CollectionRef {
	if f.collectionPrefix != "" {
		return f.client.Collection(f.collectionPrefix + "_" + pendingChecksCollection)
	}
	return f.client.Collection(pendingChecksCollection)
}

func (f *Firestore) fromDoc(doc *pendingCheckDoc) *model.QueueEntry {
	return &model.QueueEntry{
		Ref:   model.NewMessageRef(doc.Channel, doc.Timestamp),
		Score: doc.Score,
	}
}

func (f *Firestore) Upsert(ctx context.Context, ref model.MessageRef, score time.Time) error {
	if err := ref.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message reference")
	}

	docRef := f.collection().Doc(ref.Key())
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var cur pendingCheckDoc
			if err := snap.DataTo(&cur); err != nil {
				return err
			}
			if cur.Score.After(score) {
				return nil
			}
		}

		return tx.Set(docRef, &pendingCheckDoc{
			Channel:   ref.Channel,
			Timestamp: ref.Timestamp,
			Score:     score,
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert pending check", goerr.V("key", ref.Key()))
	}
	return nil
}

func (f *Firestore) RangeByScore(ctx context.Context, max time.Time) ([]*model.QueueEntry, error) {
	iter := f.collection().
		Where("score", "<=", max).
		OrderBy("score", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var entries []*model.QueueEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate pending checks", goerr.V("max", max))
		}

		var d pendingCheckDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal pending check", goerr.V("docID", doc.Ref.ID))
		}
		entries = append(entries, f.fromDoc(&d))
	}

	return entries, nil
}

func (f *Firestore) Remove(ctx context.Context, refs []model.MessageRef) error {
	if len(refs) == 0 {
		return nil
	}

	// Use BulkWriter which automatically handles batching
	bulkWriter := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bulkWriter.Delete(f.collection().Doc(ref.Key()))
		if err != nil {
			bulkWriter.End()
			return goerr.Wrap(err, "failed to add Delete operation to bulk writer", goerr.V("key", ref.Key()))
		}
		jobs = append(jobs, job)
	}
	bulkWriter.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil && status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to delete pending check", goerr.V("key", refs[i].Key()))
		}
	}
	return nil
}

func (f *Firestore) Score(ctx context.Context, ref model.MessageRef) (*model.QueueEntry, error) {
	doc, err := f.collection().Doc(ref.Key()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get pending check", goerr.V("key", ref.Key()))
	}

	var d pendingCheckDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal pending check", goerr.V("key", ref.Key()))
	}
	return f.fromDoc(&d), nil
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
