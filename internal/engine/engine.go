// Package engine defines the narrow full-text engine contract consumed by the
// indexing and query layers, and implements it on top of bleve.
//
// An index lives in its own directory under the engine root:
//
//	<root>/<name>/write.lock   writer exclusion marker (flock)
//	<root>/<name>/store/       bleve index data
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLocked is returned when another writer holds the index, or when
	// another process keeps the index open past the open timeout.
	ErrLocked = errors.New("index is locked by another writer")

	// ErrIndexNotFound is returned by OpenReader for an index that was never written.
	ErrIndexNotFound = errors.New("index does not exist")

	// ErrQuerySyntax is returned by ParseQuery when the text is not valid query syntax.
	ErrQuerySyntax = errors.New("query syntax error")

	// ErrInvalidName is returned for index names that cannot map to a directory.
	ErrInvalidName = errors.New("invalid index name")

	// ErrClosed is returned when using a closed handle or engine.
	ErrClosed = errors.New("engine handle is closed")
)

// Relation tells how a reported hit total relates to the true number of matches.
type Relation int

const (
	// RelationExact means the total is the exact number of matches.
	RelationExact Relation = iota
	// RelationAtLeast means the engine stopped counting; the total is a lower bound.
	RelationAtLeast
)

// String returns the relation name.
func (r Relation) String() string {
	if r == RelationAtLeast {
		return "AT_LEAST"
	}
	return "EXACT"
}

// Document is one document handed to Writer.AddDocuments.
// ID empty means the engine assigns one.
type Document struct {
	ID     string
	Fields map[string]string
}

// Hit is one ranked search match with its stored fields.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]string
}

// Hits is a ranked result page plus the engine's total.
type Hits struct {
	Entries  []Hit
	Total    uint64
	Relation Relation
}

// Query is a parsed query, only meaningful to the engine that produced it.
type Query interface {
	String() string
}

// Writer is an exclusive write handle bound to one index.
// Changes become visible to new readers only after Commit.
type Writer interface {
	Index() string
	DeleteByTerm(field string, values ...string) error
	AddDocuments(docs []Document) error
	Commit() error
	// Close discards uncommitted changes and releases the exclusion marker.
	// Calling it more than once is safe.
	Close() error
}

// Reader is a read handle bound to one index.
type Reader interface {
	Search(ctx context.Context, q Query, limit int) (Hits, error)
	Close() error
}

// Engine opens handles on named indexes.
type Engine interface {
	OpenWriter(ctx context.Context, name string) (Writer, error)
	OpenReader(ctx context.Context, name string) (Reader, error)
	ParseQuery(text, defaultField string) (Query, error)
	// LockMarker returns the path of the writer exclusion marker for name.
	LockMarker(name string) string
	// Exists reports whether name has index data.
	Exists(name string) (bool, error)
	// Drop deletes the index data. The caller must hold the index's writer.
	Drop(name string) error
	Close() error
}

// ValidateName rejects index names that would escape the engine root.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
