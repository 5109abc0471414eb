package candidates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/api/iterator"

	"github.com/zzenonn/zpreserve/internal/domain"
	"github.com/zzenonn/zpreserve/internal/index"
	"github.com/zzenonn/zpreserve/internal/location"
	"github.com/zzenonn/zpreserve/internal/metadata"
	"github.com/zzenonn/zpreserve/internal/selector"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	registry *location.Registry
	loc      location.StorageLocation
	root     string
	loader   *metadata.Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	objects := filepath.Join(base, "objects")
	if err := os.MkdirAll(objects, 0o755); err != nil {
		t.Fatal(err)
	}
	md, err := location.NewFilesystemMetadataLocation(filepath.Join(base, "metadata"), nil)
	if err != nil {
		t.Fatal(err)
	}
	loc, err := location.NewFilesystemStorageLocation("main", objects, md)
	if err != nil {
		t.Fatal(err)
	}
	reg := location.NewRegistry()
	if err := reg.Register(loc); err != nil {
		t.Fatal(err)
	}
	return fixture{registry: reg, loc: loc, root: loc.Path(), loader: metadata.NewManager()}
}

// add creates an object. A nil record leaves it unregistered.
func (f fixture) add(t *testing.T, rel string, md *domain.MetadataRecord) string {
	t.Helper()
	p := f.root + rel
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
		t.Fatal(err)
	}
	if md != nil {
		f.persist(t, rel, md)
	}
	return p
}

func (f fixture) persist(t *testing.T, rel string, md *domain.MetadataRecord) {
	t.Helper()
	file := domain.NewFileRecord(f.root+rel, f.loc)
	file.Metadata = md
	if err := f.loader.Persist(context.Background(), file); err != nil {
		t.Fatalf("Persist %s: %v", rel, err)
	}
}

func (f fixture) removeMetadata(t *testing.T, rel string) {
	t.Helper()
	mdPath, err := domain.NewFileRecord(f.root+rel, f.loc).MetadataPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(mdPath); err != nil {
		t.Fatal(err)
	}
}

func (f fixture) selector(t *testing.T) *selector.Selector {
	t.Helper()
	sel, err := selector.New(f.registry, selector.Options{Locations: []string{"main"}})
	if err != nil {
		t.Fatal(err)
	}
	return sel
}

func registered() *domain.MetadataRecord {
	return domain.NewMetadataRecord(now.Add(-48 * time.Hour))
}

func deregistered() *domain.MetadataRecord {
	md := registered()
	md.Deregister(now.Add(-time.Hour))
	return md
}

// dueChecker marks files due when their path contains "due".
type dueChecker struct {
	events []string
}

func (c *dueChecker) AnyServiceNeeded(file *domain.FileRecord, event string, _ time.Time) bool {
	c.events = append(c.events, event)
	return strings.Contains(file.Path, "due")
}

func paths(t *testing.T, it Iterator) []string {
	t.Helper()
	var out []string
	err := ForEach(context.Background(), it, func(file *domain.FileRecord) error {
		out = append(out, file.Path)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	return out
}

func TestFileSystemIteratorYieldsDueRegisteredFiles(t *testing.T) {
	f := newFixture(t)
	due1 := f.add(t, "a-due.txt", registered())
	f.add(t, "b-current.txt", registered())
	f.add(t, "c-due-unregistered.txt", nil)
	f.add(t, "d-due-deregistered.txt", deregistered())
	due2 := f.add(t, "sub/e-due.txt", registered())

	checker := &dueChecker{}
	it := NewFileSystemIterator(f.selector(t), f.registry, f.loader, checker, domain.EventPreserve, false,
		WithNow(func() time.Time { return now }))

	got := paths(t, it)
	if want := []string{due1, due2}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, e := range checker.events {
		if e != domain.EventPreserve {
			t.Errorf("service check used event %q", e)
		}
	}
}

func TestFileSystemIteratorForceYieldsEveryRegisteredFile(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.txt", registered())
	f.add(t, "b.txt", nil)
	c := f.add(t, "c.txt", registered())
	f.add(t, "d.txt", deregistered())

	it := NewFileSystemIterator(f.selector(t), f.registry, f.loader, &dueChecker{}, domain.EventPreserve, true)

	got := paths(t, it)
	if want := []string{a, c}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFileSystemIteratorSkipsUnreadableMetadata(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a-due.txt", registered())
	b := f.add(t, "b-due.txt", registered())

	mdPath, err := domain.NewFileRecord(f.root+"a-due.txt", f.loc).MetadataPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(mdPath, []byte("registered: [not a time\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	it := NewFileSystemIterator(f.selector(t), f.registry, f.loader, &dueChecker{}, domain.EventPreserve, false)
	got := paths(t, it)
	if want := []string{b}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFileSystemIteratorContinuesPastMissingPaths(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a-due.txt", registered())

	sel, err := selector.New(f.registry, selector.Options{Paths: []string{f.root + "missing-due.txt", a}})
	if err != nil {
		t.Fatal(err)
	}
	it := NewFileSystemIterator(sel, f.registry, f.loader, &dueChecker{}, domain.EventPreserve, false)
	got := paths(t, it)
	if want := []string{a}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFileSystemIteratorStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a-due.txt", registered())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	it := NewFileSystemIterator(f.selector(t), f.registry, f.loader, &dueChecker{}, domain.EventPreserve, false)
	if _, err := it.NextCandidate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type failingResolver struct{}

func (failingResolver) PhysicalPath(logical string) (string, error) {
	return "", errors.New("too many links")
}

func TestFileSystemIteratorWarnsOnUnresolvedPhysicalPath(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a-due.txt", registered())
	hook := logtest.NewGlobal()
	t.Cleanup(func() { log.StandardLogger().ReplaceHooks(make(log.LevelHooks)) })

	it := NewFileSystemIterator(f.selector(t), f.registry, f.loader, &dueChecker{}, domain.EventPreserve, false,
		WithPhysicalResolver(failingResolver{}))
	file, err := it.NextCandidate(context.Background())
	if err != nil {
		t.Fatalf("NextCandidate: %v", err)
	}
	if file.Path != a || file.PhysicalPath != "" {
		t.Errorf("expected %s without a physical path, got %s (%q)", a, file.Path, file.PhysicalPath)
	}

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel && strings.Contains(entry.Message, a) {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a warning naming the unresolved path")
	}
}

// fakeIndex serves fixed path lists two at a time and records removals.
type fakeIndex struct {
	stale      []string
	registered []string
	removed    []string
	asOf       time.Time
	filters    []index.Filter
	fail       error
}

func (x *fakeIndex) serve(list []string, cursor index.Cursor) index.Page {
	start := 0
	if cursor != "" {
		for i, p := range list {
			if p == string(cursor) {
				start = i + 1
			}
		}
	}
	end := start + 2
	if end > len(list) {
		end = len(list)
	}
	page := index.Page{Paths: list[start:end]}
	if len(page.Paths) > 0 {
		page.Next = index.Cursor(page.Paths[len(page.Paths)-1])
	}
	return page
}

func (x *fakeIndex) RegisteredPaths(_ context.Context, filter index.Filter, cursor index.Cursor) (index.Page, error) {
	x.filters = append(x.filters, filter)
	return x.serve(x.registered, cursor), x.fail
}

func (x *fakeIndex) PathsWithStaleServices(_ context.Context, filter index.Filter, asOf time.Time, cursor index.Cursor) (index.Page, error) {
	x.filters = append(x.filters, filter)
	x.asOf = asOf
	return x.serve(x.stale, cursor), x.fail
}

func (x *fakeIndex) Remove(_ context.Context, file *domain.FileRecord) error {
	x.removed = append(x.removed, file.Path)
	return nil
}

func (x *fakeIndex) Index(context.Context, *domain.FileRecord) error {
	return nil
}

func TestIndexIteratorKeepsIndexOrder(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.txt", registered())
	b := f.add(t, "b.txt", registered())
	c := f.add(t, "c.txt", registered())

	idx := &fakeIndex{stale: []string{c, a, b}}
	it := NewIndexIterator(idx, index.Filter{}, f.registry, f.loader, false, now)

	got := paths(t, it)
	if want := []string{c, a, b}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if !idx.asOf.Equal(now) {
		t.Errorf("expected query as of %v, got %v", now, idx.asOf)
	}
}

func TestIndexIteratorRemovesDesyncedEntries(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.txt", registered())
	b := f.add(t, "b.txt", registered())
	c := f.add(t, "c.txt", deregistered())
	d := f.add(t, "d.txt", registered())
	f.removeMetadata(t, "b.txt")

	idx := &fakeIndex{stale: []string{a, b, c, d}}
	it := NewIndexIterator(idx, index.Filter{}, f.registry, f.loader, false, now)

	got := paths(t, it)
	if want := []string{a, d}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if want := []string{b, c}; !reflect.DeepEqual(idx.removed, want) {
		t.Errorf("expected removals %v, got %v", want, idx.removed)
	}
}

func TestDirectoryObjectsSpelledAlikeByBothStrategies(t *testing.T) {
	f := newFixture(t)
	f.add(t, "obj1/0=ocfl_object_1.1", nil)
	f.add(t, "obj1/v1/content/a.txt", nil)
	f.persist(t, "obj1/", registered())
	want := []string{f.root + "obj1/"}

	sel, err := selector.New(f.registry, selector.Options{Locations: []string{"main"}, Policy: selector.OCFL})
	if err != nil {
		t.Fatal(err)
	}
	walked := paths(t, NewFileSystemIterator(sel, f.registry, f.loader, &dueChecker{}, domain.EventPreserve, true))
	if !reflect.DeepEqual(walked, want) {
		t.Errorf("filesystem strategy: expected %v, got %v", want, walked)
	}

	idx := &fakeIndex{stale: []string{f.root + "obj1"}}
	indexed := paths(t, NewIndexIterator(idx, index.Filter{}, f.registry, f.loader, false, now))
	if !reflect.DeepEqual(indexed, want) {
		t.Errorf("index strategy: expected %v, got %v", want, indexed)
	}
}

func TestIndexIteratorSkipsPathsOutsideLocations(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.txt", registered())

	idx := &fakeIndex{stale: []string{"/elsewhere/x.txt", a}}
	it := NewIndexIterator(idx, index.Filter{}, f.registry, f.loader, false, now)

	got := paths(t, it)
	if want := []string{a}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if len(idx.removed) != 0 {
		t.Errorf("expected no removals, got %v", idx.removed)
	}
}

func TestIndexIteratorForceUsesRegisteredPaths(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.txt", registered())
	b := f.add(t, "b.txt", registered())

	idx := &fakeIndex{stale: []string{a}, registered: []string{a, b}}
	it := NewIndexIterator(idx, index.Filter{}, f.registry, f.loader, true, now)

	got := paths(t, it)
	if want := []string{a, b}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestIndexIteratorPropagatesQueryErrors(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	it := NewIndexIterator(&fakeIndex{fail: boom}, index.Filter{}, f.registry, f.loader, false, now)
	if _, err := it.NextCandidate(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}
}

func TestIndexIteratorEmptyIndex(t *testing.T) {
	f := newFixture(t)
	it := NewIndexIterator(&fakeIndex{}, index.Filter{}, f.registry, f.loader, false, now)
	if _, err := it.NextCandidate(context.Background()); err != iterator.Done {
		t.Errorf("expected iterator.Done, got %v", err)
	}
	if _, err := it.NextCandidate(context.Background()); err != iterator.Done {
		t.Errorf("expected iterator.Done on repeat, got %v", err)
	}
}

func TestLocatorChoosesStrategy(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a-due.txt", registered())
	f.add(t, "b.txt", registered())

	plain := NewLocator(f.registry, f.loader, &dueChecker{})
	if plain.IndexConfigured() {
		t.Error("expected no index")
	}
	if _, ok := plain.CandidateIterator(f.selector(t), domain.EventPreserve, false).(*FileSystemIterator); !ok {
		t.Error("expected a filesystem iterator without an index")
	}

	idx := &fakeIndex{stale: []string{a}}
	indexed := NewLocator(f.registry, f.loader, &dueChecker{}, WithIndex(idx), WithClock(func() time.Time { return now }))
	it := indexed.CandidateIterator(f.selector(t), domain.EventPreserve, false)
	if _, ok := it.(*IndexIterator); !ok {
		t.Fatal("expected an index iterator with an index")
	}
	if got := paths(t, it); !reflect.DeepEqual(got, []string{a}) {
		t.Errorf("expected [%s], got %v", a, got)
	}
	if len(idx.filters) == 0 || !reflect.DeepEqual(idx.filters[0].Locations, []string{"main"}) {
		t.Errorf("expected location filter [main], got %+v", idx.filters)
	}
}
