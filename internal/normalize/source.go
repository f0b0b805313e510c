package normalize

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Container is the container family guessed from the leading bytes.
type Container string

const (
	ContainerMP4      Container = "mp4"
	ContainerAVI      Container = "avi"
	ContainerMatroska Container = "matroska"
	ContainerUnknown  Container = "unknown"
)

const headerLen = 32

var (
	riffMagic = []byte("RIFF")
	ebmlMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}
	ftypBox   = []byte("ftyp")
)

// SourceVideo is a validated input file. It is not modified after Validate.
type SourceVideo struct {
	Path      string
	Size      int64
	Header    []byte
	Container Container
}

// Validate confirms path is a non-empty regular file and sniffs its container.
// An unknown container is not an error; the probe and the escalation ladder
// decide whether the file is usable.
func Validate(path string) (SourceVideo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return SourceVideo{}, &ValidationError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return SourceVideo{}, &ValidationError{Path: path, Err: fmt.Errorf("not a regular file")}
	}
	if info.Size() == 0 {
		return SourceVideo{}, &ValidationError{Path: path, Err: ErrEmptySource}
	}

	f, err := os.Open(path)
	if err != nil {
		return SourceVideo{}, &ValidationError{Path: path, Err: err}
	}
	defer f.Close()

	header := make([]byte, headerLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return SourceVideo{}, &ValidationError{Path: path, Err: fmt.Errorf("read header: %w", err)}
	}
	header = header[:n]

	return SourceVideo{
		Path:      path,
		Size:      info.Size(),
		Header:    header,
		Container: SniffContainer(header),
	}, nil
}

// SniffContainer classifies a file header. ISO BMFF files start with a
// big-endian box size whose top bytes are zero, followed by "ftyp".
func SniffContainer(header []byte) Container {
	switch {
	case len(header) >= 8 && bytes.Equal(header[4:8], ftypBox):
		return ContainerMP4
	case bytes.HasPrefix(header, []byte{0x00, 0x00, 0x00}):
		return ContainerMP4
	case bytes.HasPrefix(header, riffMagic):
		return ContainerAVI
	case bytes.HasPrefix(header, ebmlMagic):
		return ContainerMatroska
	default:
		return ContainerUnknown
	}
}
