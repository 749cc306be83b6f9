package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements Store on top of a Cloud Firestore client.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) Get(ctx context.Context, docPath string) (*Document, error) {
	snap, err := f.client.Doc(docPath).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, docPath)
		}
		return nil, err
	}
	return fromSnapshot(snap), nil
}

func (f *Firestore) ListIDs(ctx context.Context, collectionPath string) ([]string, error) {
	// DocumentRefs includes missing documents that only hold subcollections
	it := f.client.Collection(collectionPath).DocumentRefs(ctx)
	var ids []string
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

func (f *Firestore) Query(ctx context.Context, q Query) ([]Document, error) {
	it := f.query(q).Documents(ctx)
	defer it.Stop()
	return collect(it)
}

func (f *Firestore) Commit(ctx context.Context, writes ...Write) ([]string, error) {
	refs := make([]*firestore.DocumentRef, len(writes))
	for i, w := range writes {
		switch w.Op {
		case OpAdd:
			if col := f.client.Collection(w.Path); col != nil {
				refs[i] = col.NewDoc()
			}
		case OpMerge, OpCreate:
			refs[i] = f.client.Doc(w.Path)
		default:
			return nil, fmt.Errorf("unknown write op %d", w.Op)
		}
		if refs[i] == nil {
			return nil, fmt.Errorf("invalid path %q", w.Path)
		}
	}

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, w := range writes {
			data := toFirestore(w.Data)
			var err error
			switch w.Op {
			case OpMerge:
				err = tx.Set(refs[i], data, firestore.MergeAll)
			default:
				err = tx.Create(refs[i], data)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		}
		return nil, err
	}

	paths := make([]string, len(refs))
	for i, ref := range refs {
		paths[i] = relativePath(ref)
	}
	return paths, nil
}

func (f *Firestore) Listen(ctx context.Context, q Query) (Listener, error) {
	return &firestoreListener{it: f.query(q).Snapshots(ctx)}, nil
}

func (f *Firestore) query(q Query) firestore.Query {
	query := f.client.Collection(q.Collection).Query
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Dir == Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}

type firestoreListener struct {
	it *firestore.QuerySnapshotIterator
}

func (l *firestoreListener) Next() ([]Document, error) {
	snap, err := l.it.Next()
	if err != nil {
		if errors.Is(err, iterator.Done) {
			return nil, ErrStopped
		}
		return nil, err
	}
	return collect(snap.Documents)
}

func (l *firestoreListener) Stop() {
	l.it.Stop()
}

func collect(it *firestore.DocumentIterator) ([]Document, error) {
	var docs []Document
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, *fromSnapshot(snap))
	}
}

func fromSnapshot(snap *firestore.DocumentSnapshot) *Document {
	return &Document{ID: snap.Ref.ID, Path: relativePath(snap.Ref), Data: snap.Data()}
}

// relativePath strips "projects/{p}/databases/{d}/documents/" from a ref.
func relativePath(ref *firestore.DocumentRef) string {
	if ref.Parent == nil {
		return ref.ID
	}
	if ref.Parent.Parent == nil {
		return ref.Parent.ID + "/" + ref.ID
	}
	return relativePath(ref.Parent.Parent) + "/" + ref.Parent.ID + "/" + ref.ID
}

func toFirestore(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v == ServerTimestamp {
			v = firestore.ServerTimestamp
		}
		out[k] = v
	}
	return out
}
