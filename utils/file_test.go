package utils

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func uploadHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["file"][0]
}

func TestSaveFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "7_20250601120000.png")

	require.NoError(t, SaveFile(uploadHeader(t, "shot.png", []byte("image-bytes")), dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("image-bytes"), data)
}

func TestSafeJoin(t *testing.T) {
	got, err := SafeJoin("/srv/uploads", "7_20250601120000.png")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/srv/uploads", "7_20250601120000.png"), got)

	for _, name := range []string{"../etc/passwd", "a/b.png", ".", "..", "/abs.png"} {
		_, err := SafeJoin("/srv/uploads", name)
		require.ErrorIs(t, err, ErrUnsafeFilename, "name %q", name)
	}
}
