// Package metadata reads and writes per-object metadata files and their digest sidecars.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/zzenonn/zpreserve/internal/digest"
	"github.com/zzenonn/zpreserve/internal/domain"
	zerrors "github.com/zzenonn/zpreserve/internal/errors"
)

// Loader is the read half of the manager, consumed by the candidate iterators.
type Loader interface {
	MetadataPresent(ctx context.Context, file *domain.FileRecord) (bool, error)
	Load(ctx context.Context, file *domain.FileRecord) (*domain.MetadataRecord, error)
}

// Manager loads and persists metadata files through each file's metadata location.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// SidecarPath names the digest file stored next to a metadata file.
func SidecarPath(mdPath, alg string) string {
	return mdPath + "." + alg
}

// MetadataPresent reports whether the file's metadata file exists.
func (m *Manager) MetadataPresent(ctx context.Context, file *domain.FileRecord) (bool, error) {
	mdPath, err := file.MetadataPath()
	if err != nil {
		return false, err
	}
	entry, err := file.Location.MetadataLocation().Stat(ctx, mdPath)
	if err != nil {
		return false, err
	}
	return entry.Exists && !entry.IsDir, nil
}

// Load reads the file's metadata, verifies any digest sidecars that are present and attaches
// the record to the file.
func (m *Manager) Load(ctx context.Context, file *domain.FileRecord) (*domain.MetadataRecord, error) {
	present, err := m.MetadataPresent(ctx, file)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, zerrors.RegistrationError(file.Path, "not registered")
	}

	mdPath, err := file.MetadataPath()
	if err != nil {
		return nil, err
	}
	mdLoc := file.Location.MetadataLocation()
	data, err := mdLoc.Read(ctx, mdPath)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", mdPath, err)
	}

	if err := m.verify(ctx, file, mdPath, data); err != nil {
		return nil, err
	}

	record := &domain.MetadataRecord{}
	if err := yaml.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", mdPath, err)
	}
	file.Metadata = record
	return record, nil
}

func (m *Manager) verify(ctx context.Context, file *domain.FileRecord, mdPath string, data []byte) error {
	mdLoc := file.Location.MetadataLocation()
	for _, alg := range mdLoc.Digests() {
		sidecar := SidecarPath(mdPath, alg)
		entry, err := mdLoc.Stat(ctx, sidecar)
		if err != nil {
			return err
		}
		if !entry.Exists {
			log.Debugf("No %s digest recorded for %s", alg, mdPath)
			continue
		}

		expected, err := mdLoc.Read(ctx, sidecar)
		if err != nil {
			return fmt.Errorf("read digest %s: %w", sidecar, err)
		}
		actual, err := digest.Compute(alg, bytes.NewReader(data))
		if err != nil {
			return err
		}
		if want := strings.TrimSpace(string(expected)); !strings.EqualFold(want, actual) {
			return fmt.Errorf("%w: %s: %s expected %s, computed %s", zerrors.ErrChecksumMismatch, mdPath, alg, want, actual)
		}
	}
	return nil
}

// Persist writes the file's metadata record and one digest sidecar per configured algorithm.
func (m *Manager) Persist(ctx context.Context, file *domain.FileRecord) error {
	if file.Metadata == nil {
		return zerrors.RegistrationError(file.Path, "no metadata to persist")
	}
	mdPath, err := file.MetadataPath()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(file.Metadata); err != nil {
		return fmt.Errorf("encode metadata %s: %w", mdPath, err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	data := buf.Bytes()

	mdLoc := file.Location.MetadataLocation()
	if err := mdLoc.Write(ctx, mdPath, data); err != nil {
		return err
	}
	for _, alg := range mdLoc.Digests() {
		sum, err := digest.Compute(alg, bytes.NewReader(data))
		if err != nil {
			return err
		}
		if err := mdLoc.Write(ctx, SidecarPath(mdPath, alg), []byte(sum+"\n")); err != nil {
			return err
		}
	}

	log.Debugf("Persisted metadata for %s to %s", file.Path, mdPath)
	return nil
}
