// Package remote defines the wire types for the per-user cloud document
// store and provides the Firestore-backed production implementation. Remote
// documents are loosely typed field maps; the sync codec is the only place
// that converts between them and typed entities.
package remote

import "path"

// Document is one record in a remote collection, addressed by entity id.
type Document struct {
	ID     string
	Fields map[string]any
}

// Write is one staged set operation inside an atomic batch.
type Write struct {
	Path   string // collection path, e.g. users/{uid}/transactions
	ID     string
	Fields map[string]any
}

// serverTimestamp is the sentinel type for ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp marks a field to be stamped with the server-assigned write
// time at commit. Client clocks never feed the conflict-resolution signal, so
// modification fields must use this sentinel rather than a local time value.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// CollectionPath returns the per-user collection path. The user id scoping
// is what makes cross-user contention impossible.
func CollectionPath(userID, collection string) string {
	return path.Join("users", userID, collection)
}
