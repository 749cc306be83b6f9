// Package store is the persistent store client used by the chat packages:
// path-addressed documents, ordered queries, atomic multi-document commits
// and live query listeners.
package store

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	// ErrStopped is returned by Listener.Next after Stop.
	ErrStopped = errors.New("listener stopped")
)

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock when a write is committed.
var ServerTimestamp any = serverTimestamp{}

type Direction int

const (
	Asc Direction = iota
	Desc
)

// Query selects the documents of one collection. Documents lacking the
// OrderBy field are excluded, as Firestore does.
type Query struct {
	Collection string
	OrderBy    string
	Dir        Direction
	Limit      int
}

type Document struct {
	ID   string
	Path string
	Data map[string]any
}

type Op int

const (
	// OpMerge upserts the given fields, keeping other fields of an existing document.
	OpMerge Op = iota
	// OpCreate fails with ErrAlreadyExists if the document exists.
	OpCreate
	// OpAdd creates a document with a store generated id inside the collection Path.
	OpAdd
)

type Write struct {
	Op   Op
	Path string
	Data map[string]any
}

func Merge(docPath string, data map[string]any) Write {
	return Write{Op: OpMerge, Path: docPath, Data: data}
}

func Create(docPath string, data map[string]any) Write {
	return Write{Op: OpCreate, Path: docPath, Data: data}
}

func Add(collectionPath string, data map[string]any) Write {
	return Write{Op: OpAdd, Path: collectionPath, Data: data}
}

// Listener delivers full query snapshots. The first call to Next returns the
// current result; later calls block until the result changes.
type Listener interface {
	Next() ([]Document, error)
	Stop()
}

type Store interface {
	Get(ctx context.Context, docPath string) (*Document, error)
	// ListIDs returns the ids of a collection's documents, including ids that
	// only exist as parents of subcollections.
	ListIDs(ctx context.Context, collectionPath string) ([]string, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// Commit applies all writes atomically and returns the path of every
	// written document, in order.
	Commit(ctx context.Context, writes ...Write) ([]string, error)
	Listen(ctx context.Context, q Query) (Listener, error)
}

// Parent returns the collection path a document path belongs to.
func Parent(docPath string) string {
	return path.Dir(strings.Trim(docPath, "/"))
}

// Join builds a slash separated store path.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}
