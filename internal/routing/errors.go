package routing

import "fmt"

type UploadErrorKind string

const (
	UploadSizeLimit UploadErrorKind = "size-limit"
	UploadGeneric   UploadErrorKind = "generic"
)

// UploadError is a failed remote placement. Size-limit failures from the CDN
// are absorbed by the local fallback, so callers normally only see generic
// ones.
type UploadError struct {
	Kind        UploadErrorKind
	Destination Destination
	Err         error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s upload failed (%s): %v", e.Destination, e.Kind, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// StorageIOError is a local filesystem failure while placing or deleting
// the artifact.
type StorageIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }
