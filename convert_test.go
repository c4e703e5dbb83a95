package main

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgconv/internal/config"
	"imgconv/internal/converter"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return path
}

func TestRunConvert_Single(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, "input.png", 20, 10)
	outDir := filepath.Join(dir, "out")

	out, err := runConvert(context.Background(), config.Default(), []string{in}, convertOptions{height: 5, format: "bmp", outDir: outDir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "input.bmp"), out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, format, err := image.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)
	assert.Equal(t, image.Pt(10, 5), img.Bounds().Size())
}

func TestRunConvert_ImageToPDF(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 10, 10)
	b := writePNG(t, dir, "b.png", 10, 10)

	out, err := runConvert(context.Background(), config.Default(), []string{a, b}, convertOptions{direction: "image_to_pdf", outDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "converted.pdf"), out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	n, err := converter.PageCount(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunConvert_NothingConverted(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hi"), 0o644))

	_, err := runConvert(context.Background(), config.Default(), []string{txt}, convertOptions{outDir: dir})
	assert.True(t, errors.Is(err, converter.ErrNoOutput))
}

func TestRunConvert_BadOptions(t *testing.T) {
	_, err := runConvert(context.Background(), config.Default(), []string{"x.png"}, convertOptions{direction: "up"})
	assert.Error(t, err)

	_, err = runConvert(context.Background(), config.Default(), []string{"x.png"}, convertOptions{width: -1})
	assert.Error(t, err)

	_, err = runConvert(context.Background(), config.Default(), []string{filepath.Join(t.TempDir(), "missing.png")}, convertOptions{})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
