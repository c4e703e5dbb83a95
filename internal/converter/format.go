package converter

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

var mimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
}

// MIMEType returns the content type for a file extension, or
// application/octet-stream when the extension is unknown.
func MIMEType(ext string) string {
	if m, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return m
	}
	return "application/octet-stream"
}

// OutputExt picks the extension of a converted image: the requested format
// when set, otherwise the decoded source format with jpeg named jpg.
func OutputExt(requested, sourceFormat string) string {
	if requested != "" {
		return strings.ToLower(requested)
	}
	ext := strings.ToLower(sourceFormat)
	if ext == "jpeg" {
		ext = "jpg"
	}
	return ext
}

// Encode writes img to w in the format named by ext. JPEG output is
// flattened onto white first since the codec has no alpha channel; pdf
// writes a one-page document sized to the image.
func Encode(w io.Writer, img image.Image, ext string, jpegQuality int) error {
	ext = strings.ToLower(ext)
	switch ext {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Quality: float32(jpegQuality)})
	case "pdf":
		return encodePDF(w, img, jpegQuality)
	}
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return fmt.Errorf("format %q: %w", ext, err)
	}
	if format == imaging.JPEG {
		img = flatten(img)
		return imaging.Encode(w, img, format, imaging.JPEGQuality(jpegQuality))
	}
	return imaging.Encode(w, img, format)
}

// flatten composites img over an opaque white canvas of the same size.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// convertImage decodes an uploaded image, applies the requested resize and
// re-encodes it in the target format.
func (p *Pipeline) convertImage(name string, data []byte, req Request) (OutputUnit, error) {
	img, format, err := decodeImage(data, p.maxPixels)
	if err != nil {
		return OutputUnit{}, &ConversionError{Filename: name, Stage: "decode", Err: err}
	}
	ext := OutputExt(req.Format, format)
	if !p.gate.Allowed("." + ext) {
		return OutputUnit{}, &ConversionError{Filename: name, Stage: "encode", Err: fmt.Errorf("format %q is not allowed", ext)}
	}
	img, err = Resize(img, req, p.filter, p.maxPixels)
	if err != nil {
		return OutputUnit{}, &ConversionError{Filename: name, Stage: "resize", Err: err}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img, ext, p.jpegQuality); err != nil {
		return OutputUnit{}, &ConversionError{Filename: name, Stage: "encode", Err: err}
	}
	out := Stem(name) + "." + ext
	p.logger.Debug("Converted image", "filename", name, "output", out, "sourceFormat", format, "size", buf.Len())
	return OutputUnit{Kind: UnitBytes, Name: out, Data: buf.Bytes()}, nil
}
