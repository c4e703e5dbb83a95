package converter

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readArchive returns the entry names in order and their contents.
func readArchive(t *testing.T, data []byte) ([]string, map[string][]byte) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	contents := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		names = append(names, f.Name)
		contents[f.Name] = b
	}
	return names, contents
}

func TestPackager_Single(t *testing.T) {
	p := NewPackager("converted_files.zip", nil)

	payload := p.Single(OutputUnit{Kind: UnitBytes, Name: "사진.webp", Data: []byte("abc")})
	assert.Equal(t, PayloadSingle, payload.Kind)
	assert.Equal(t, "사진.webp", payload.Filename)
	assert.Equal(t, "image/webp", payload.ContentType)
	assert.Equal(t, []byte("abc"), payload.Data)

	payload = p.Single(OutputUnit{Kind: UnitBytes, Name: "odd.xyz"})
	assert.Equal(t, "application/octet-stream", payload.ContentType)
}

func TestPackager_PDF(t *testing.T) {
	payload := NewPackager("images.zip", nil).PDF([]byte("%PDF-1.3"))
	assert.Equal(t, PayloadPDF, payload.Kind)
	assert.Equal(t, "converted.pdf", payload.Filename)
	assert.Equal(t, "application/pdf", payload.ContentType)
}

func TestPackager_Archive(t *testing.T) {
	p := NewPackager("images.zip", nil)

	payload, err := p.Archive([]OutputUnit{
		{Kind: UnitBytes, Name: "a.png", Data: []byte("first")},
		{Kind: UnitBytes, Name: "b.jpg", Data: []byte("second")},
	})
	require.NoError(t, err)
	assert.Equal(t, PayloadArchive, payload.Kind)
	assert.Equal(t, "images.zip", payload.Filename)
	assert.Equal(t, "application/zip", payload.ContentType)

	names, contents := readArchive(t, payload.Data)
	assert.Equal(t, []string{"a.png", "b.jpg"}, names)
	assert.Equal(t, []byte("first"), contents["a.png"])
	assert.Equal(t, []byte("second"), contents["b.jpg"])
}

func TestPackager_ArchiveCollisionLastWriteWins(t *testing.T) {
	var logBuf bytes.Buffer
	p := NewPackager("converted_files.zip", slog.New(slog.NewTextHandler(&logBuf, nil)))

	payload, err := p.Archive([]OutputUnit{
		{Kind: UnitBytes, Name: "x.png", Data: []byte("one")},
		{Kind: UnitBytes, Name: "y.png", Data: []byte("two")},
		{Kind: UnitBytes, Name: "x.png", Data: []byte("three")},
	})
	require.NoError(t, err)

	names, contents := readArchive(t, payload.Data)
	assert.Equal(t, []string{"x.png", "y.png"}, names)
	assert.Equal(t, []byte("three"), contents["x.png"])
	assert.Contains(t, logBuf.String(), "Duplicate archive entry")
}
