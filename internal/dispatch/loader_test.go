package dispatch

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoader_Load(t *testing.T) {
	path := writeFile(t, "report1.txt", "línea uno\n")

	content, meta, err := FileLoader{}.Load(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "línea uno\n", string(content))
	assert.Equal(t, uint64(info.Size()), meta.Size)
	assert.Equal(t, info.ModTime(), meta.ModTime)
	assert.True(t, meta.Mode.IsRegular())
}

func TestFileLoader_EmptyFile(t *testing.T) {
	content, meta, err := FileLoader{}.Load(writeFile(t, "empty.txt", ""))
	require.NoError(t, err)
	assert.Empty(t, content)
	assert.Zero(t, meta.Size)
}

func TestFileLoader_Utf8Check(t *testing.T) {
	path := writeFile(t, "latin1.txt", "caf\xe9")

	_, _, err := FileLoader{}.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTF-8")

	content, _, err := FileLoader{AllowBinary: true}.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("caf\xe9"), content)
}

func TestDigest(t *testing.T) {
	// blake2b-256 of the empty input.
	assert.Equal(t, "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8", Digest(nil))
	assert.Len(t, Digest([]byte("hello")), 64)
	assert.NotEqual(t, Digest([]byte("a")), Digest([]byte("b")))
}
