package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpreserve/internal/domain"
	zerrors "github.com/zzenonn/zpreserve/internal/errors"
	"github.com/zzenonn/zpreserve/internal/index"
	"github.com/zzenonn/zpreserve/internal/location"
)

// entryKey is the stored form of an object path. Directory objects are keyed without their
// trailing separator so both spellings address the same entry.
func entryKey(p string) string {
	return location.TrimTrailingSeparator(p)
}

// Index inserts or replaces the entry for file.
func (s *Store) Index(ctx context.Context, file *domain.FileRecord) error {
	if file.Metadata == nil {
		return zerrors.RegistrationError(file.Path, "cannot index a file without metadata")
	}

	var serviceTime sql.NullInt64
	if next, ok := s.serviceTime(file); ok {
		serviceTime = sql.NullInt64{Int64: next.UnixMilli(), Valid: true}
	}
	deregistered := 0
	if file.Metadata.IsDeregistered() {
		deregistered = 1
	}

	err := s.execWithRetry(ctx, `INSERT INTO file_index (path, location, registered, deregistered, service_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			location = excluded.location,
			registered = excluded.registered,
			deregistered = excluded.deregistered,
			service_time = excluded.service_time,
			updated_at = excluded.updated_at`,
		entryKey(file.Path),
		file.Location.Name(),
		domain.FormatTimestamp(file.Metadata.Registered),
		deregistered,
		serviceTime,
		domain.FormatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("index %s: %w", file.Path, err)
	}
	return nil
}

// Remove deletes the entry for file. Removing a missing entry is not an error.
func (s *Store) Remove(ctx context.Context, file *domain.FileRecord) error {
	if err := s.execWithRetry(ctx, "DELETE FROM file_index WHERE path = ?", entryKey(file.Path)); err != nil {
		return fmt.Errorf("remove %s from index: %w", file.Path, err)
	}
	return nil
}

// RegisteredPaths lists registered entries in path order.
func (s *Store) RegisteredPaths(ctx context.Context, filter index.Filter, cursor index.Cursor) (index.Page, error) {
	where, args := filterClause(filter)
	if cursor != "" {
		where = append(where, "path > ?")
		args = append(args, string(cursor))
	}
	query := "SELECT path FROM file_index WHERE " + strings.Join(where, " AND ") + " ORDER BY path LIMIT ?"
	args = append(args, s.pageSize)

	paths, err := s.queryPaths(ctx, query, args...)
	if err != nil {
		return index.Page{}, err
	}
	page := index.Page{Paths: paths}
	if len(paths) > 0 {
		page.Next = index.Cursor(paths[len(paths)-1])
	}
	return page, nil
}

// PathsWithStaleServices lists entries due at or before asOf, oldest service time first.
func (s *Store) PathsWithStaleServices(ctx context.Context, filter index.Filter, asOf time.Time, cursor index.Cursor) (index.Page, error) {
	where, args := filterClause(filter)
	where = append(where, "service_time IS NOT NULL", "service_time <= ?")
	args = append(args, asOf.UnixMilli())

	if cursor != "" {
		millis, last, err := parseStaleCursor(cursor)
		if err != nil {
			return index.Page{}, err
		}
		where = append(where, "(service_time > ? OR (service_time = ? AND path > ?))")
		args = append(args, millis, millis, last)
	}

	query := "SELECT path, service_time FROM file_index WHERE " + strings.Join(where, " AND ") +
		" ORDER BY service_time, path LIMIT ?"
	args = append(args, s.pageSize)

	var (
		paths    []string
		lastTime int64
	)
	err := retryOnBusy(ctx, func() error {
		paths = paths[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p, &lastTime); err != nil {
				return err
			}
			paths = append(paths, p)
		}
		return rows.Err()
	})
	if err != nil {
		return index.Page{}, fmt.Errorf("query stale entries: %w", err)
	}

	log.Debugf("Index returned %d stale entries as of %s", len(paths), domain.FormatTimestamp(asOf))
	page := index.Page{Paths: paths}
	if len(paths) > 0 {
		page.Next = index.Cursor(strconv.FormatInt(lastTime, 10) + "|" + paths[len(paths)-1])
	}
	return page, nil
}

func parseStaleCursor(cursor index.Cursor) (int64, string, error) {
	raw, last, ok := strings.Cut(string(cursor), "|")
	if !ok {
		return 0, "", fmt.Errorf("malformed index cursor %q", cursor)
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed index cursor %q: %w", cursor, err)
	}
	return millis, last, nil
}

// filterClause renders the deregistration, location and path conditions of a query.
func filterClause(filter index.Filter) ([]string, []any) {
	where := []string{"deregistered = 0"}
	var args []any

	if len(filter.Locations) > 0 {
		placeholders := make([]string, len(filter.Locations))
		for i, name := range filter.Locations {
			placeholders[i] = "?"
			args = append(args, name)
		}
		where = append(where, "location IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Paths) > 0 {
		var alternatives []string
		for _, target := range filter.Paths {
			key := entryKey(target)
			prefix := key + location.Separator
			alternatives = append(alternatives, "path = ? OR substr(path, 1, length(?)) = ?")
			args = append(args, key, prefix, prefix)
		}
		where = append(where, "("+strings.Join(alternatives, " OR ")+")")
	}
	return where, args
}

func (s *Store) queryPaths(ctx context.Context, query string, args ...any) ([]string, error) {
	var paths []string
	err := retryOnBusy(ctx, func() error {
		paths = paths[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			paths = append(paths, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return paths, nil
}

// Count returns the number of registered entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM file_index WHERE deregistered = 0").Scan(&n)
	})
	return n, err
}
