package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Server timestamps come from a strictly
// increasing clock so documents written in sequence never share a timestamp.
type Memory struct {
	mu        sync.Mutex
	docs      map[string]map[string]any
	listeners map[*memoryListener]struct{}
	now       func() time.Time
	last      time.Time
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		docs:      map[string]map[string]any{},
		listeners: map[*memoryListener]struct{}{},
		now:       now,
	}
}

func (m *Memory) Get(_ context.Context, docPath string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docPath = strings.Trim(docPath, "/")
	data, ok := m.docs[docPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docPath)
	}
	return &Document{ID: lastSegment(docPath), Path: docPath, Data: maps.Clone(data)}, nil
}

func (m *Memory) ListIDs(_ context.Context, collectionPath string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.Trim(collectionPath, "/") + "/"
	seen := map[string]struct{}{}
	var ids []string
	for p := range m.docs {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		id, _, _ := strings.Cut(rest, "/")
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Query(_ context.Context, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query(q), nil
}

func (m *Memory) query(q Query) []Document {
	collection := strings.Trim(q.Collection, "/")
	var docs []Document
	for p, data := range m.docs {
		if Parent(p) != collection {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := data[q.OrderBy]; !ok {
				continue
			}
		}
		docs = append(docs, Document{ID: lastSegment(p), Path: p, Data: maps.Clone(data)})
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
			if q.Dir == Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		if q.Dir == Desc && q.OrderBy != "" {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].ID < docs[j].ID
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

func (m *Memory) Commit(_ context.Context, writes ...Write) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, len(writes))
	for i, w := range writes {
		p := strings.Trim(w.Path, "/")
		switch w.Op {
		case OpAdd:
			p = p + "/" + strings.ReplaceAll(uuid.NewString(), "-", "")
		case OpCreate:
			if _, exists := m.docs[p]; exists {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, p)
			}
		case OpMerge:
		default:
			return nil, fmt.Errorf("unknown write op %d", w.Op)
		}
		paths[i] = p
	}

	ts := m.tick()
	touched := map[string]struct{}{}
	for i, w := range writes {
		p := paths[i]
		doc := m.docs[p]
		if doc == nil || w.Op != OpMerge {
			doc = map[string]any{}
		}
		for k, v := range w.Data {
			if v == ServerTimestamp {
				v = ts
			}
			doc[k] = v
		}
		m.docs[p] = doc
		touched[Parent(p)] = struct{}{}
	}

	for l := range m.listeners {
		if _, ok := touched[strings.Trim(l.q.Collection, "/")]; ok {
			l.signal()
		}
	}
	return paths, nil
}

func (m *Memory) tick() time.Time {
	ts := m.now().UTC()
	if !ts.After(m.last) {
		ts = m.last.Add(time.Microsecond)
	}
	m.last = ts
	return ts
}

func (m *Memory) Listen(ctx context.Context, q Query) (Listener, error) {
	l := &memoryListener{
		m:       m,
		ctx:     ctx,
		q:       q,
		changed: make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	l.changed <- struct{}{}
	m.mu.Lock()
	m.listeners[l] = struct{}{}
	m.mu.Unlock()
	return l, nil
}

// Listeners reports how many listeners are currently registered.
func (m *Memory) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

type memoryListener struct {
	m        *Memory
	ctx      context.Context
	q        Query
	changed  chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func (l *memoryListener) signal() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

func (l *memoryListener) Next() ([]Document, error) {
	select {
	case <-l.stopped:
		return nil, ErrStopped
	default:
	}
	select {
	case <-l.changed:
		l.m.mu.Lock()
		defer l.m.mu.Unlock()
		return l.m.query(l.q), nil
	case <-l.stopped:
		return nil, ErrStopped
	case <-l.ctx.Done():
		l.Stop()
		return nil, l.ctx.Err()
	}
}

func (l *memoryListener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopped)
		l.m.mu.Lock()
		delete(l.m.listeners, l)
		l.m.mu.Unlock()
	})
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// compareValues orders nil before every other value, then by type.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return compareOrdered(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return compareOrdered(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return compareOrdered(av, bv)
		}
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func compareOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
