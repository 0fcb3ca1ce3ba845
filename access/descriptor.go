package access

import (
	"fmt"

	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/pixel"
)

// RepositoryEndpoint names a pixel server.  Two endpoints with the same ID are
// the same repository.
type RepositoryEndpoint struct {
	ID    string
	URL   string
	Token string
}

// Endpoint converts a [[repository]] configuration entry.
func Endpoint(rc config.RepositoryConfig) *RepositoryEndpoint {
	return &RepositoryEndpoint{ID: rc.ID, URL: rc.URL, Token: rc.Token}
}

func (r *RepositoryEndpoint) String() string {
	return fmt.Sprintf("repository %s (%s)", r.ID, r.URL)
}

// Owner is the record that produced an array or file, e.g. an import job.
type Owner struct {
	Kind string
	ID   string
}

func (o Owner) String() string {
	if o.Kind == "" && o.ID == "" {
		return "unowned"
	}
	return o.Kind + ":" + o.ID
}

// PixelArrayDescriptor is the caller's record of a remote pixel array.
type PixelArrayDescriptor struct {
	Repository *RepositoryEndpoint
	Owner      Owner
	PixelsID   pixel.PixelsID
	Dims       pixel.Dims
	Signed     bool
	Float      bool
	Type       pixel.PixelType
	SHA1       string
	Sealed     bool
}

func (d *PixelArrayDescriptor) Info() pixel.Info {
	return pixel.Info{Dims: d.Dims, Signed: d.Signed, Float: d.Float, Sealed: d.Sealed}
}

func (d *PixelArrayDescriptor) String() string {
	state := "writable"
	if d.Sealed {
		state = "sealed"
	}
	return fmt.Sprintf("pixels %d in repository %s (%s %s, %s)", d.PixelsID, d.Repository.ID, d.Type, d.Dims, state)
}

// wrap adds the repository and pixels id to an error.
func (d *PixelArrayDescriptor) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s pixels %d in repository %s: %w", op, d.PixelsID, d.Repository.ID, err)
}

// FileDescriptor is the caller's record of an uploaded file.
type FileDescriptor struct {
	Repository *RepositoryEndpoint
	Owner      Owner
	FileID     pixel.FileID
	Name       string
	Size       int64
	SHA1       string
}

func (f *FileDescriptor) String() string {
	return fmt.Sprintf("file %d %q in repository %s", f.FileID, f.Name, f.Repository.ID)
}

func (f *FileDescriptor) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s file %d in repository %s: %w", op, f.FileID, f.Repository.ID, err)
}
