// Package converter implements the batch conversion pipeline: filename
// sanitization, the extension gate, resize and format conversion, the PDF
// bridge in both directions, and packaging of the results into a single
// downloadable payload.
package converter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"log/slog"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ErrEmptySubmission is returned when no files were selected at all.
var ErrEmptySubmission = errors.New("no files were submitted")

// ErrNoOutput is returned when every submitted file was skipped or failed.
var ErrNoOutput = errors.New("no file could be converted")

// ErrAssembly is returned when the image_to_pdf document cannot be built.
var ErrAssembly = errors.New("pdf assembly failed")

// ErrTooLarge is returned when an image would exceed the pixel limit.
var ErrTooLarge = errors.New("image exceeds the pixel limit")

// Direction selects between the default image path and the two PDF paths.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionPDFToImage
	DirectionImageToPDF
)

func (d Direction) String() string {
	switch d {
	case DirectionPDFToImage:
		return "pdf_to_image"
	case DirectionImageToPDF:
		return "image_to_pdf"
	default:
		return "none"
	}
}

// ParseDirection maps a convert_direction form value to a Direction.
// The boolean is false for values that are neither empty nor known.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DirectionNone, true
	case "pdf_to_image":
		return DirectionPDFToImage, true
	case "image_to_pdf":
		return DirectionImageToPDF, true
	}
	return DirectionNone, false
}

// Upload is one file received from the client. Filename is untrusted.
type Upload struct {
	Filename string
	Data     []byte
}

// Request holds the conversion options of one submission. Width and Height
// are zero when absent; Format is empty to keep the source format.
type Request struct {
	Width     int
	Height    int
	Format    string
	Direction Direction
}

// ParseRequest builds a Request from raw form values. Dimensions that are
// not positive integers are treated as absent and logged.
func ParseRequest(width, height, format, direction string) Request {
	req := Request{
		Width:  parseDimension("width", width),
		Height: parseDimension("height", height),
		Format: strings.ToLower(strings.TrimSpace(format)),
	}
	dir, ok := ParseDirection(direction)
	if !ok {
		slog.Warn("Ignoring unknown conversion direction", "direction", direction)
	}
	req.Direction = dir
	return req
}

func parseDimension(field, s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		slog.Warn("Ignoring invalid dimension", "field", field, "value", s)
		return 0
	}
	return n
}

// UnitKind tags the contents of an OutputUnit.
type UnitKind int

const (
	// UnitBytes is an encoded file ready to be sent or archived.
	UnitBytes UnitKind = iota
	// UnitPendingPage is a decoded, opaque image awaiting PDF assembly.
	UnitPendingPage
)

// OutputUnit is one produced output: either encoded bytes or a page held
// for the image_to_pdf document.
type OutputUnit struct {
	Kind  UnitKind
	Name  string
	Data  []byte
	Image image.Image
}

// ConversionError is a failure confined to a single uploaded file.
type ConversionError struct {
	Filename string
	Stage    string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Filename, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// checkPixels returns ErrTooLarge when a w x h image has more than limit
// pixels. A limit of zero disables the check.
func checkPixels(w, h int, limit int64) error {
	if limit <= 0 || w <= 0 || h <= 0 {
		return nil
	}
	if int64(h) > limit/int64(w) {
		return fmt.Errorf("%w: %dx%d, limit %d", ErrTooLarge, w, h, limit)
	}
	return nil
}

// decodeImage decodes data with whichever registered codec matches and
// returns the detected format name ("jpeg", "png", "webp", ...). The header
// is read first so oversized images are rejected before any pixel buffer is
// allocated.
func decodeImage(data []byte, maxPixels int64) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if err := checkPixels(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	// 16-bit images are converted to 8-bit NRGBA; imaging.Clone does this.
	switch img.(type) {
	case *image.Gray16, *image.NRGBA64, *image.RGBA64:
		slog.Debug("Converting 16-bit image to 8-bit NRGBA", "format", format)
		img = imaging.Clone(img)
	}
	return img, format, nil
}
