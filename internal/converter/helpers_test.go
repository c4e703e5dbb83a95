package converter

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/require"

	"imgconv/internal/config"
)

// newTestImage returns a w x h gradient so resampled output is not uniform.
func newTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodeTestImage(t *testing.T, img image.Image, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, newTestImage(w, h)))
	return buf.Bytes()
}

var a4 = gofpdf.SizeType{Wd: 595.28, Ht: 841.89}

// newTestPDF builds a PDF with one labelled page per entry in sizes.
func newTestPDF(t *testing.T, sizes ...gofpdf.SizeType) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i, size := range sizes {
		pdf.AddPageFormat("P", size)
		pdf.Text(10, 20, string(rune('A'+i)))
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

// fakeRenderer returns a fixed number of pages or an error.
type fakeRenderer struct {
	pages int
	err   error
}

func (f fakeRenderer) RenderPages(data []byte, fn func(int, image.Image) error) error {
	if f.err != nil {
		return f.err
	}
	for i := 0; i < f.pages; i++ {
		if err := fn(i, newTestImage(8+i, 6)); err != nil {
			return err
		}
	}
	return nil
}

// renderAll collects every page r renders from data.
func renderAll(t *testing.T, r PDFRenderer, data []byte) []image.Image {
	t.Helper()
	var pages []image.Image
	require.NoError(t, r.RenderPages(data, func(_ int, page image.Image) error {
		pages = append(pages, page)
		return nil
	}))
	return pages
}

var errCorrupt = errors.New("corrupt document")

// newTestPipeline builds a Pipeline from defaults, logging into logBuf.
func newTestPipeline(t *testing.T, logBuf *bytes.Buffer, mutate func(*config.Config), opts ...Option) *Pipeline {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	if logBuf == nil {
		logBuf = new(bytes.Buffer)
	}
	logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]Option{WithLogger(logger)}, opts...)
	p, err := NewPipeline(cfg, opts...)
	require.NoError(t, err)
	return p
}

func decodeBytes(t *testing.T, data []byte) (image.Image, string) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img, format
}
