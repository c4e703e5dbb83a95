package converter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFRenderer rasterizes the pages of a PDF document in page order. fn is
// called once per page with its zero-based index; the page image is not
// retained after fn returns. An error from fn stops rendering and is
// returned unchanged.
type PDFRenderer interface {
	RenderPages(data []byte, fn func(index int, page image.Image) error) error
}

// FitzRenderer renders pages with MuPDF at a fixed resolution. Pages whose
// rendered size would exceed MaxPixels fail with ErrTooLarge; zero means no
// limit.
type FitzRenderer struct {
	DPI       float64
	MaxPixels int64
}

// RenderPages implements PDFRenderer.
func (r FitzRenderer) RenderPages(data []byte, fn func(index int, page image.Image) error) error {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	for i := 0; i < doc.NumPage(); i++ {
		bound, err := doc.Bound(i)
		if err != nil {
			return fmt.Errorf("failed to read page %d: %w", i+1, err)
		}
		// Bound is in points, 72 per inch.
		scale := r.DPI / 72
		w := int(math.Ceil(float64(bound.Dx()) * scale))
		h := int(math.Ceil(float64(bound.Dy()) * scale))
		if err := checkPixels(w, h, r.MaxPixels); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}

		img, err := doc.ImageDPI(i, r.DPI)
		if err != nil {
			return fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		if err := fn(i, img); err != nil {
			return err
		}
	}
	return nil
}

// pdfToImages renders each page of an uploaded PDF to {stem}_page_{i}.png.
// Pages are encoded as they are rendered.
func (p *Pipeline) pdfToImages(name string, data []byte) ([]OutputUnit, error) {
	stem := Stem(name)
	var units []OutputUnit
	err := p.renderer.RenderPages(data, func(i int, page image.Image) error {
		var buf bytes.Buffer
		if err := Encode(&buf, page, "png", p.jpegQuality); err != nil {
			return &ConversionError{Filename: name, Stage: "encode", Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
		units = append(units, OutputUnit{
			Kind: UnitBytes,
			Name: fmt.Sprintf("%s_page_%d.png", stem, i+1),
			Data: buf.Bytes(),
		})
		return nil
	})
	if err != nil {
		var ce *ConversionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ConversionError{Filename: name, Stage: "render", Err: err}
	}
	p.logger.Debug("Rendered PDF pages", "filename", name, "pages", len(units))
	return units, nil
}

// preparePage decodes an uploaded image for the image_to_pdf document. The
// image is resized as requested and flattened to an opaque RGB image.
func (p *Pipeline) preparePage(name string, data []byte, req Request) (OutputUnit, error) {
	img, _, err := decodeImage(data, p.maxPixels)
	if err != nil {
		return OutputUnit{}, &ConversionError{Filename: name, Stage: "decode", Err: err}
	}
	img, err = Resize(img, req, p.filter, p.maxPixels)
	if err != nil {
		return OutputUnit{}, &ConversionError{Filename: name, Stage: "resize", Err: err}
	}
	return OutputUnit{Kind: UnitPendingPage, Name: name, Image: PreparePage(img)}, nil
}

// PreparePage drops the alpha channel of img by compositing it onto white.
// The result is always opaque.
func PreparePage(img image.Image) image.Image {
	flat := flatten(img)
	if _, ok := flat.(*image.NRGBA); ok {
		return flat
	}
	return imaging.Clone(flat)
}

// AssemblePDF builds one PDF with a page per pending unit, in order. Each
// page is sized to its image, one pixel per point. Units that are not
// pending pages are ignored.
func AssemblePDF(units []OutputUnit, jpegQuality int) ([]byte, error) {
	pdf := newDocument()
	pages := 0
	for i, u := range units {
		if u.Kind != UnitPendingPage || u.Image == nil {
			continue
		}
		if err := addPage(pdf, u.Image, i, jpegQuality); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrAssembly, u.Name, err)
		}
		pages++
	}
	if pages == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrAssembly)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssembly, err)
	}
	return out.Bytes(), nil
}

// encodePDF writes img as a one-page document, for convert_to=pdf.
func encodePDF(w io.Writer, img image.Image, jpegQuality int) error {
	pdf := newDocument()
	if err := addPage(pdf, PreparePage(img), 0, jpegQuality); err != nil {
		return err
	}
	return pdf.Output(w)
}

func newDocument() *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "pt", "A4", "") // Default page size, actual size set per image
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	return pdf
}

func addPage(pdf *gofpdf.Fpdf, img image.Image, index, jpegQuality int) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("could not encode page: %w", err)
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})

	imageName := fmt.Sprintf("page%d", index) // Ensure unique name
	opts := gofpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(imageName, opts, &buf)
	pdf.ImageOptions(imageName, 0, 0, w, h, false, opts, 0, "")
	if pdf.Err() {
		return pdf.Error()
	}
	return nil
}

var pdfcpuOnce sync.Once

// pdfcpuConfig returns a pdfcpu configuration that never touches the
// user's config directory.
func pdfcpuConfig() *model.Configuration {
	pdfcpuOnce.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

// ValidatePDF checks that data is a well-formed PDF with exactly pages
// pages.
func ValidatePDF(data []byte, pages int) error {
	conf := pdfcpuConfig()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return fmt.Errorf("%w: validation: %v", ErrAssembly, err)
	}
	n, err := PageCount(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssembly, err)
	}
	if n != pages {
		return fmt.Errorf("%w: document has %d pages, want %d", ErrAssembly, n, pages)
	}
	return nil
}

// PageCount returns the number of pages in a PDF document.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		return 0, fmt.Errorf("could not count pages: %w", err)
	}
	return n, nil
}
