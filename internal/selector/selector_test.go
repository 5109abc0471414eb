package selector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/api/iterator"

	zerrors "github.com/zzenonn/zpreserve/internal/errors"
	"github.com/zzenonn/zpreserve/internal/location"
)

type fixture struct {
	registry *location.Registry
	loc      location.StorageLocation
	objects  string
	metadata string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	objects := filepath.Join(base, "objects")
	metadata := filepath.Join(base, "metadata")
	for _, d := range []string{objects, metadata} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	md, err := location.NewFilesystemMetadataLocation(metadata, nil)
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
	return fixture{registry: reg, loc: loc, objects: loc.Path(), metadata: md.Path()}
}

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func collect(t *testing.T, s *Selector) []string {
	t.Helper()
	var paths []string
	if err := s.ForEach(context.Background(), func(p string) error {
		paths = append(paths, p)
		return nil
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	return paths
}

func TestNewValidatesOptions(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		opts Options
	}{
		{"neither", Options{}},
		{"both", Options{Paths: []string{f.objects}, Locations: []string{"main"}}},
		{"unknown location", Options{Locations: []string{"missing"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(f.registry, tt.opts); !errors.Is(err, zerrors.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestTraversalIsAlphabeticalDepthFirst(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, f.objects, "b.txt", "a.txt", "asub/c.txt", "asub/deeper/d.txt")

	s, err := New(f.registry, Options{Locations: []string{"main"}})
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, s)
	want := []string{
		f.objects + "a.txt",
		f.objects + "asub/c.txt",
		f.objects + "asub/deeper/d.txt",
		f.objects + "b.txt",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := s.NextPath(context.Background()); err != iterator.Done {
		t.Errorf("expected iterator.Done after exhaustion, got %v", err)
	}
}

func TestExplicitPathsKeepTheirOrder(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, f.objects, "a.txt", "b.txt", "sub/c.txt")

	s, err := New(f.registry, Options{Paths: []string{f.objects + "b.txt", f.objects + "sub", f.objects + "a.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, s)
	want := []string{f.objects + "b.txt", f.objects + "sub/c.txt", f.objects + "a.txt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMissingPathIsInvalidAndTraversalResumes(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, f.objects, "a.txt")

	s, err := New(f.registry, Options{Paths: []string{f.objects + "missing.txt", f.objects + "a.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := s.NextPath(ctx); !errors.Is(err, zerrors.ErrInvalidPath) {
		t.Fatalf("expected invalid path error, got %v", err)
	}
	p, err := s.NextPath(ctx)
	if err != nil || p != f.objects+"a.txt" {
		t.Errorf("expected traversal to resume with a.txt, got %q, %v", p, err)
	}
}

func TestPathOutsideLocations(t *testing.T) {
	f := newFixture(t)
	s, err := New(f.registry, Options{Paths: []string{t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.NextPath(context.Background()); !errors.Is(err, zerrors.ErrStorageLocationUnavailable) {
		t.Errorf("expected location unavailable error, got %v", err)
	}
}

func TestParentTraversalLeavesLocation(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, filepath.Dir(filepath.Clean(f.objects)), "secret.txt")

	s, err := New(f.registry, Options{Paths: []string{f.objects + "../secret.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := s.NextPath(ctx); !errors.Is(err, zerrors.ErrStorageLocationUnavailable) {
		t.Fatalf("expected location unavailable error, got %v", err)
	}
	if p, err := s.NextPath(ctx); err != iterator.Done {
		t.Errorf("expected nothing yielded, got %q, %v", p, err)
	}
}

func TestTargetsAreCleaned(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, f.objects, "a.txt", "sub/b.txt")

	s, err := New(f.registry, Options{Paths: []string{f.objects + "sub/../a.txt", f.objects + "./sub/"}})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{f.objects + "a.txt", f.objects + "sub/"}
	if got := s.TargetPaths(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected targets %v, got %v", want, got)
	}
	if got := collect(t, s); strings.Join(got, ",") != f.objects+"a.txt,"+f.objects+"sub/b.txt" {
		t.Errorf("unexpected paths %v", got)
	}
}

func TestRelativeTargetIsMadeAbsolute(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, f.objects, "a.txt")
	t.Chdir(f.objects)

	s, err := New(f.registry, Options{Paths: []string{"a.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, s)
	if len(got) != 1 || got[0] != f.objects+"a.txt" {
		t.Errorf("expected %s, got %v", f.objects+"a.txt", got)
	}
}

func TestFilter(t *testing.T) {
	f := newFixture(t)
	byLocation, _ := New(f.registry, Options{Locations: []string{"main"}})
	if got := byLocation.Filter(); len(got.Locations) != 1 || got.Locations[0] != "main" || len(got.Paths) != 0 {
		t.Errorf("unexpected location filter %+v", got)
	}
	byPath, _ := New(f.registry, Options{Paths: []string{f.objects + "sub/"}})
	if got := byPath.Filter(); len(got.Paths) != 1 || got.Paths[0] != f.objects+"sub/" {
		t.Errorf("unexpected path filter %+v", got)
	}
}

func TestOCFLPolicy(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, f.objects,
		"obj1/0=ocfl_object_1.1",
		"obj1/v1/content/file.txt",
		"obj2/0=ocfl_object_1.0",
		"plain/file.txt",
		"ocfl_layout.json",
	)

	t.Run("marked directory is one candidate", func(t *testing.T) {
		s, err := New(f.registry, Options{Paths: []string{f.objects + "obj1"}, Policy: OCFL})
		if err != nil {
			t.Fatal(err)
		}
		got := collect(t, s)
		if len(got) != 1 || got[0] != f.objects+"obj1/" {
			t.Errorf("expected [obj1/], got %v", got)
		}
	})

	t.Run("unmarked directory is skipped", func(t *testing.T) {
		s, err := New(f.registry, Options{Paths: []string{f.objects + "plain"}, Policy: OCFL})
		if err != nil {
			t.Fatal(err)
		}
		if got := collect(t, s); len(got) != 0 {
			t.Errorf("expected no candidates, got %v", got)
		}
	})

	t.Run("file target is invalid", func(t *testing.T) {
		s, err := New(f.registry, Options{Paths: []string{f.objects + "plain/file.txt"}, Policy: OCFL})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.NextPath(context.Background()); !errors.Is(err, zerrors.ErrInvalidPath) {
			t.Errorf("expected invalid path error, got %v", err)
		}
	})

	t.Run("storage root yields objects", func(t *testing.T) {
		s, err := New(f.registry, Options{Locations: []string{"main"}, Policy: OCFL})
		if err != nil {
			t.Fatal(err)
		}
		got := collect(t, s)
		want := []string{f.objects + "obj1/", f.objects + "obj2/"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("expected %v, got %v", want, got)
		}
	})
}

type mapResolver map[string]string

func (m mapResolver) PhysicalPath(logical string) (string, error) {
	if p, ok := m[logical]; ok {
		return p, nil
	}
	return logical, nil
}

func TestOCFLPhysicalPath(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, f.objects, "alias/keep", "real/0=ocfl_object_1.1", "file.txt")

	s, err := New(f.registry, Options{
		Paths:    []string{f.objects + "alias"},
		Policy:   OCFL,
		Resolver: mapResolver{f.objects + "alias/": f.objects + "real/"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, s)
	if len(got) != 1 || got[0] != f.objects+"alias/" {
		t.Errorf("expected logical path alias/, got %v", got)
	}

	s, err = New(f.registry, Options{
		Paths:    []string{f.objects + "alias"},
		Policy:   OCFL,
		Resolver: mapResolver{f.objects + "alias/": f.objects + "file.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.NextPath(context.Background()); !errors.Is(err, zerrors.ErrInvalidPath) {
		t.Errorf("expected invalid path for a file physical path, got %v", err)
	}

	s, err = New(f.registry, Options{
		Paths:    []string{f.objects + "alias"},
		Policy:   OCFL,
		Resolver: mapResolver{f.objects + "alias/": t.TempDir()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.NextPath(context.Background()); !errors.Is(err, zerrors.ErrStorageLocationUnavailable) {
		t.Errorf("expected location error for a physical path outside every location, got %v", err)
	}
}

func TestRegisteredPolicy(t *testing.T) {
	f := newFixture(t)
	writeFiles(t, f.objects, "a.txt", "b.txt", "sub/c.txt", "unregistered.txt")
	writeFiles(t, f.metadata,
		"a.txt"+location.MetadataSuffix,
		"a.txt"+location.MetadataSuffix+".sha1",
		"sub/c.txt"+location.MetadataSuffix,
		"gone.txt"+location.MetadataSuffix,
	)

	s, err := New(f.registry, Options{Locations: []string{"main"}, Policy: Registered})
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, s)
	want := []string{f.objects + "a.txt", f.objects + "gone.txt", f.objects + "sub/c.txt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}

	s, err = New(f.registry, Options{Paths: []string{f.objects + "sub"}, Policy: Registered})
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, s); len(got) != 1 || got[0] != f.objects+"sub/c.txt" {
		t.Errorf("expected directory target to walk its metadata, got %v", got)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"object without metadata", f.objects + "unregistered.txt", zerrors.ErrRegistration},
		{"missing object", f.objects + "nothing.txt", zerrors.ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(f.registry, Options{Paths: []string{tt.path}, Policy: Registered})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := s.NextPath(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	for name, want := range map[string]Policy{"": Plain, "plain": Plain, "OCFL": OCFL, "registered": Registered} {
		got, err := ParsePolicy(name)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParsePolicy("tree"); !errors.Is(err, zerrors.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
