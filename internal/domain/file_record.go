package domain

import (
	"github.com/zzenonn/zpreserve/internal/location"
)

// FileRecord - a candidate object found during one traversal
type FileRecord struct {
	Path     string
	Location location.StorageLocation
	// PhysicalPath is set only when the object's bytes live somewhere other than Path.
	PhysicalPath string
	Metadata     *MetadataRecord
}

func NewFileRecord(path string, loc location.StorageLocation) *FileRecord {
	return &FileRecord{Path: path, Location: loc}
}

// Physical returns the path holding the object's content.
func (f *FileRecord) Physical() string {
	if f.PhysicalPath != "" {
		return f.PhysicalPath
	}
	return f.Path
}

// MetadataPath returns the path of the object's metadata file. Directory objects, such as
// OCFL object roots, are named without their trailing separator so they get a metadata file.
func (f *FileRecord) MetadataPath() (string, error) {
	return f.Location.MetadataPathFor(location.TrimTrailingSeparator(f.Path))
}

// Registered reports whether metadata is attached and not deregistered.
func (f *FileRecord) Registered() bool {
	return f.Metadata != nil && !f.Metadata.IsDeregistered()
}

// Equal compares records by logical path.
func (f *FileRecord) Equal(other *FileRecord) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Path == other.Path
}

func (f *FileRecord) String() string {
	return f.Path
}
