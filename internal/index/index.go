// Package index defines the secondary index consulted instead of walking storage locations.
//
// An index keeps one entry per registered object with the earliest time any of its
// preservation services is due. Drivers page through entries with an opaque cursor; a page
// without paths ends the listing.
package index

import (
	"context"
	"strings"
	"time"

	"github.com/zzenonn/zpreserve/internal/domain"
)

// Cursor marks where the next page starts. The empty cursor requests the first page.
type Cursor string

// Page is one batch of object paths.
type Page struct {
	Paths []string
	Next  Cursor
}

// Done reports whether the page ends the listing.
func (p Page) Done() bool {
	return len(p.Paths) == 0
}

// Filter narrows a query to storage locations or path trees.
type Filter struct {
	Locations []string
	Paths     []string
}

// MatchesLocation reports whether entries of the named location are selected.
func (f Filter) MatchesLocation(name string) bool {
	if len(f.Locations) == 0 {
		return true
	}
	for _, l := range f.Locations {
		if l == name {
			return true
		}
	}
	return false
}

// MatchesPath reports whether p equals a filtered path or lies beneath one.
func (f Filter) MatchesPath(p string) bool {
	if len(f.Paths) == 0 {
		return true
	}
	for _, target := range f.Paths {
		if MatchesPrefix(target, p) {
			return true
		}
	}
	return false
}

// MatchesPrefix reports whether p is target itself or an entry beneath it.
func MatchesPrefix(target, p string) bool {
	if p == target || strings.TrimSuffix(p, "/") == strings.TrimSuffix(target, "/") {
		return true
	}
	if !strings.HasSuffix(target, "/") {
		target += "/"
	}
	return strings.HasPrefix(p, target)
}

// Index is the query and maintenance surface of a secondary index.
type Index interface {
	// RegisteredPaths lists every registered object matching the filter.
	RegisteredPaths(ctx context.Context, filter Filter, cursor Cursor) (Page, error)
	// PathsWithStaleServices lists objects with a service due at or before asOf, stalest first.
	PathsWithStaleServices(ctx context.Context, filter Filter, asOf time.Time, cursor Cursor) (Page, error)
	Remove(ctx context.Context, file *domain.FileRecord) error
	// Index inserts or replaces the entry for file from its attached metadata.
	Index(ctx context.Context, file *domain.FileRecord) error
}

// ServiceTimeFunc computes the time an object is next due for any service.
type ServiceTimeFunc func(file *domain.FileRecord) (time.Time, bool)
