package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zzenonn/zpreserve/internal/domain"
	zerrors "github.com/zzenonn/zpreserve/internal/errors"
	"github.com/zzenonn/zpreserve/internal/location"
)

func newLocation(t *testing.T, digests ...string) (location.StorageLocation, string) {
	t.Helper()
	base := t.TempDir()
	objects := filepath.Join(base, "objects")
	if err := os.MkdirAll(objects, 0o755); err != nil {
		t.Fatal(err)
	}
	md, err := location.NewFilesystemMetadataLocation(filepath.Join(base, "metadata"), digests)
	if err != nil {
		t.Fatal(err)
	}
	loc, err := location.NewFilesystemStorageLocation("main", objects, md)
	if err != nil {
		t.Fatal(err)
	}
	return loc, loc.Path()
}

func TestPersistAndLoad(t *testing.T) {
	loc, root := newLocation(t, "sha1", "md5")
	ctx := context.Background()
	m := NewManager()

	registered := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	file := domain.NewFileRecord(root+"a/b.txt", loc)
	file.Metadata = domain.NewMetadataRecord(registered)
	file.Metadata.SetChecksum("sha256", "abc123")
	file.Metadata.AddService("fixity").RecordSuccess(registered.Add(time.Hour))

	if err := m.Persist(ctx, file); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	mdPath, _ := file.MetadataPath()
	for _, alg := range []string{"sha1", "md5"} {
		if _, err := os.Stat(SidecarPath(mdPath, alg)); err != nil {
			t.Errorf("expected %s sidecar: %v", alg, err)
		}
	}

	reloaded := domain.NewFileRecord(root+"a/b.txt", loc)
	present, err := m.MetadataPresent(ctx, reloaded)
	if err != nil || !present {
		t.Fatalf("expected metadata present, got %v, %v", present, err)
	}
	rec, err := m.Load(ctx, reloaded)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Metadata != rec {
		t.Error("expected loaded record to be attached to the file")
	}
	if !rec.Registered.Equal(registered) {
		t.Errorf("expected registered %v, got %v", registered, rec.Registered)
	}
	if sum, _ := rec.Checksum("SHA256"); sum != "abc123" {
		t.Errorf("expected checksum abc123, got %q", sum)
	}
	fixity := rec.Service("fixity")
	if fixity == nil || fixity.Timestamp == nil || !fixity.Timestamp.Equal(registered.Add(time.Hour)) {
		t.Errorf("unexpected fixity record %+v", fixity)
	}
}

func TestLoadDetectsTamperedMetadata(t *testing.T) {
	loc, root := newLocation(t, "sha256")
	ctx := context.Background()
	m := NewManager()

	file := domain.NewFileRecord(root+"a.txt", loc)
	file.Metadata = domain.NewMetadataRecord(time.Now())
	if err := m.Persist(ctx, file); err != nil {
		t.Fatal(err)
	}

	mdPath, _ := file.MetadataPath()
	data, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), "services:", "note: edited\nservices:", 1)
	if err := os.WriteFile(mdPath, []byte(tampered), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Load(ctx, domain.NewFileRecord(root+"a.txt", loc)); !errors.Is(err, zerrors.ErrChecksumMismatch) {
		t.Errorf("expected checksum mismatch, got %v", err)
	}
}

func TestLoadWithoutSidecarsSucceeds(t *testing.T) {
	loc, root := newLocation(t, "sha1")
	ctx := context.Background()
	m := NewManager()

	file := domain.NewFileRecord(root+"a.txt", loc)
	file.Metadata = domain.NewMetadataRecord(time.Now())
	if err := m.Persist(ctx, file); err != nil {
		t.Fatal(err)
	}
	mdPath, _ := file.MetadataPath()
	if err := os.Remove(SidecarPath(mdPath, "sha1")); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Load(ctx, domain.NewFileRecord(root+"a.txt", loc)); err != nil {
		t.Errorf("expected load without sidecar to succeed, got %v", err)
	}
}

func TestLoadUnregistered(t *testing.T) {
	loc, root := newLocation(t)
	m := NewManager()
	file := domain.NewFileRecord(root+"missing.txt", loc)

	present, err := m.MetadataPresent(context.Background(), file)
	if err != nil || present {
		t.Fatalf("expected no metadata, got %v, %v", present, err)
	}
	if _, err := m.Load(context.Background(), file); !errors.Is(err, zerrors.ErrRegistration) {
		t.Errorf("expected registration error, got %v", err)
	}
}

func TestDirectoryObjectMetadataPath(t *testing.T) {
	loc, root := newLocation(t)
	m := NewManager()
	file := domain.NewFileRecord(root+"ocfl/obj1/", loc)
	file.Metadata = domain.NewMetadataRecord(time.Now())

	if err := m.Persist(context.Background(), file); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	mdPath, err := file.MetadataPath()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(mdPath, "ocfl/obj1"+location.MetadataSuffix) {
		t.Errorf("expected directory object metadata file, got %s", mdPath)
	}
	if present, _ := m.MetadataPresent(context.Background(), file); !present {
		t.Error("expected directory object metadata to be present")
	}
}

func TestPersistRequiresMetadata(t *testing.T) {
	loc, root := newLocation(t)
	err := NewManager().Persist(context.Background(), domain.NewFileRecord(root+"a.txt", loc))
	if !errors.Is(err, zerrors.ErrRegistration) {
		t.Errorf("expected registration error, got %v", err)
	}
}
