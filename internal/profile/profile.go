// Package profile reads the pre-built configuration profile served for installation.
package profile

import (
	"os"
	"path/filepath"

	udiderrors "getudid/internal/errors"
)

// ContentType is the MIME type iOS expects for a configuration profile.
const ContentType = "application/x-apple-aspen-config"

// Source supplies the artifact bytes verbatim.
type Source interface {
	// Name is the file name advertised in Content-Disposition.
	Name() string
	// Artifact returns the artifact bytes or an ARTIFACT_UNAVAILABLE error.
	Artifact() ([]byte, error)
}

// FileSource reads the artifact from disk on every request, so a profile
// replaced while the server runs is picked up without a restart.
type FileSource struct {
	path string
	name string
}

// NewFileSource returns a Source for path. An empty name defaults to the base name of path.
func NewFileSource(path, name string) *FileSource {
	if name == "" {
		name = filepath.Base(path)
	}
	return &FileSource{path: path, name: name}
}

// Name returns the advertised file name.
func (s *FileSource) Name() string {
	return s.name
}

// Path returns the path the artifact is read from.
func (s *FileSource) Path() string {
	return s.path
}

// Artifact reads the artifact file.
func (s *FileSource) Artifact() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, udiderrors.New(udiderrors.ArtifactUnavailable, "read "+s.path, err)
	}
	return data, nil
}

// Static serves an in-memory artifact.
type Static struct {
	FileName string
	Data     []byte
}

// Name returns the advertised file name.
func (s Static) Name() string {
	return s.FileName
}

// Artifact returns the in-memory bytes verbatim, or ARTIFACT_UNAVAILABLE when
// Data is nil. A non-nil empty slice is a valid zero-length artifact.
func (s Static) Artifact() ([]byte, error) {
	if s.Data == nil {
		return nil, udiderrors.New(udiderrors.ArtifactUnavailable, s.FileName+" is not loaded", nil)
	}
	return s.Data, nil
}
