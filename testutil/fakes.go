// Package testutil provides in-memory fakes for the sync engine's
// collaborators, shared by engine and CLI tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/centsync/centsync/internal/remote"
)

// FakeRemote is an in-memory remote document store. Collections are keyed by
// path (users/{uid}/{collection}). Error fields inject failures; a failed
// Commit applies nothing, matching the real store's atomic batch semantics.
type FakeRemote struct {
	mu   sync.Mutex
	docs map[string]map[string]remote.Document // path → id → doc

	// ServerTime is substituted for the ServerTimestamp sentinel on writes.
	// Tests advance it to simulate later server-assigned write times.
	ServerTime time.Time

	// ListErr fails List calls; when FailPath is set only that path fails,
	// letting tests break a pass mid-sequence.
	ListErr  error
	FailPath string

	SetErr    error
	DeleteErr error
	CommitErr error

	Commits   [][]remote.Write
	ListCalls []string
}

// NewFakeRemote returns an empty fake with a fixed server clock.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		docs:       make(map[string]map[string]remote.Document),
		ServerTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// Seed places a document directly into the store, bypassing sentinel
// substitution — fields are stored as given.
func (f *FakeRemote) Seed(path, id string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.docs[path] == nil {
		f.docs[path] = make(map[string]remote.Document)
	}

	f.docs[path][id] = remote.Document{ID: id, Fields: fields}
}

// Doc returns the stored document and whether it exists.
func (f *FakeRemote) Doc(path, id string) (remote.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[path][id]

	return doc, ok
}

// List returns all documents at path in unspecified order.
func (f *FakeRemote) List(_ context.Context, path string) ([]remote.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListCalls = append(f.ListCalls, path)

	if f.ListErr != nil && (f.FailPath == "" || f.FailPath == path) {
		return nil, f.ListErr
	}

	var out []remote.Document
	for _, doc := range f.docs[path] {
		out = append(out, doc)
	}

	return out, nil
}

// ListOrdered sorts by a time-valued field.
func (f *FakeRemote) ListOrdered(ctx context.Context, path, orderBy string, desc bool) ([]remote.Document, error) {
	docs, err := f.List(ctx, path)
	if err != nil {
		return nil, err
	}

	fieldTime := func(d remote.Document) time.Time {
		t, _ := d.Fields[orderBy].(time.Time)
		return t
	}

	sort.Slice(docs, func(i, j int) bool {
		if desc {
			return fieldTime(docs[i]).After(fieldTime(docs[j]))
		}

		return fieldTime(docs[i]).Before(fieldTime(docs[j]))
	})

	return docs, nil
}

// Set writes one document, substituting the server timestamp sentinel.
func (f *FakeRemote) Set(_ context.Context, path, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetErr != nil {
		return f.SetErr
	}

	f.apply(remote.Write{Path: path, ID: id, Fields: fields})

	return nil
}

// Delete removes one document. Deleting a missing document succeeds.
func (f *FakeRemote) Delete(_ context.Context, path, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DeleteErr != nil {
		return f.DeleteErr
	}

	delete(f.docs[path], id)

	return nil
}

// Commit applies all writes atomically, or none when CommitErr is set.
func (f *FakeRemote) Commit(_ context.Context, writes []remote.Write) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CommitErr != nil {
		return f.CommitErr
	}

	for _, w := range writes {
		f.apply(w)
	}

	f.Commits = append(f.Commits, writes)

	return nil
}

func (f *FakeRemote) apply(w remote.Write) {
	if f.docs[w.Path] == nil {
		f.docs[w.Path] = make(map[string]remote.Document)
	}

	fields := make(map[string]any, len(w.Fields))
	for k, v := range w.Fields {
		if remote.IsServerTimestamp(v) {
			fields[k] = f.ServerTime
			continue
		}

		fields[k] = v
	}

	f.docs[w.Path][w.ID] = remote.Document{ID: w.ID, Fields: fields}
}

// FakeIdentity reports a fixed user id; empty means not signed in.
type FakeIdentity struct {
	UserID string
}

func (f FakeIdentity) CurrentUserID() (string, bool) {
	return f.UserID, f.UserID != ""
}

// FakeConnectivity is a hand-driven reachability signal.
type FakeConnectivity struct {
	mu        sync.Mutex
	reachable bool
	changes   chan bool
}

func NewFakeConnectivity(reachable bool) *FakeConnectivity {
	return &FakeConnectivity{reachable: reachable, changes: make(chan bool, 4)}
}

func (f *FakeConnectivity) Reachable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reachable
}

func (f *FakeConnectivity) Changes() <-chan bool {
	return f.changes
}

// SetReachable flips reachability and emits the transition.
func (f *FakeConnectivity) SetReachable(reachable bool) {
	f.mu.Lock()
	changed := f.reachable != reachable
	f.reachable = reachable
	f.mu.Unlock()

	if changed {
		f.changes <- reachable
	}
}
