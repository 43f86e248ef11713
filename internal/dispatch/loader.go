package dispatch

import (
	"encoding/hex"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/errors"
)

// FileLoader reads a created file and its metadata.
type FileLoader struct {
	// AllowBinary skips the UTF-8 check.
	AllowBinary bool
}

// Load reads the full content of path. Non-regular files are refused before
// they are opened, so a fifo never blocks the loop. Unless AllowBinary is
// set the content must be valid UTF-8. Metadata is taken after the read.
func (l FileLoader) Load(path string) ([]byte, domain.FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.FileMetadata{}, errors.Wrapf(err, errors.CodeIO, "stat %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil, domain.FileMetadata{}, errors.NotRegular(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, domain.FileMetadata{}, errors.Wrapf(err, errors.CodeIO, "open %s", path)
	}
	defer f.Close() //nolint:errcheck // read-only

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.FileMetadata{}, errors.Wrapf(err, errors.CodeIO, "read %s", path)
	}

	if !l.AllowBinary {
		if _, _, err := transform.Bytes(encoding.UTF8Validator, content); err != nil {
			return nil, domain.FileMetadata{}, errors.Wrapf(err, errors.CodeIO, "decode %s as UTF-8", path)
		}
	}

	info, err = f.Stat()
	if err != nil {
		return nil, domain.FileMetadata{}, errors.Wrapf(err, errors.CodeIO, "stat %s", path)
	}

	return content, domain.FileMetadata{
		Size:    uint64(info.Size()), //nolint:gosec // G115: regular file sizes are non-negative
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
	}, nil
}

// Digest returns the hex blake2b-256 digest of content.
func Digest(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
