package archive_test

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/k8r/pkg/archive"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return root
}

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()

	got := map[string]string{}
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		b, err := io.ReadAll(tr)
		require.NoError(t, err)

		got[hdr.Name] = string(b)
	}

	return got
}

func TestEncodeDirectory(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"main.py":             "print('hi')\n",
		"k8s-startup.sh":      "pip install -r requirements.txt\n",
		"pkg/util/helpers.py": "X = 1\n",
		"data/empty.txt":      "",
	}
	root := writeTree(t, files)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty-dir"), 0o755))

	encoded, err := archive.EncodeDirectory(root)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	gr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, files, readTar(t, gr))
}

func TestWriteTar(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{"Dockerfile": "FROM alpine\n"})

	var buf bytes.Buffer
	require.NoError(t, archive.WriteTar(&buf, root))

	assert.Equal(t, map[string]string{"Dockerfile": "FROM alpine\n"}, readTar(t, &buf))
}

func TestWriteTar_MissingRoot(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := archive.WriteTar(&buf, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
