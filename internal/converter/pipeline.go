package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"

	"imgconv/internal/config"
)

// Pipeline runs one submission through gate, sanitizer, conversion and
// packaging. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	gate        Gate
	renderer    PDFRenderer
	packager    *Packager
	filter      imaging.ResampleFilter
	jpegQuality int
	validatePDF bool
	pdfEnabled  bool
	maxPixels   int64
	logger      *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRenderer replaces the MuPDF page renderer.
func WithRenderer(r PDFRenderer) Option {
	return func(p *Pipeline) { p.renderer = r }
}

// WithLogger sets the logger used for per-file failures and progress.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline builds a Pipeline from the process configuration.
func NewPipeline(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	filter, err := ParseFilter(cfg.Resample)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.KeyResample, err)
	}
	p := &Pipeline{
		gate:        NewGate(cfg.AllowedExtensions()),
		renderer:    FitzRenderer{DPI: cfg.RenderDPI, MaxPixels: cfg.MaxPixels},
		filter:      filter,
		jpegQuality: cfg.JPEGQuality,
		validatePDF: cfg.ValidatePDF,
		pdfEnabled:  cfg.PDFEnabled,
		maxPixels:   cfg.MaxPixels,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.packager = NewPackager(cfg.ArchiveName(), p.logger)
	return p, nil
}

// Run converts uploads according to req. It returns ErrEmptySubmission when
// nothing was selected and ErrNoOutput when no file could be converted.
// Failures of individual files are logged and skipped. Files are processed
// sequentially in upload order; ctx is checked between files. Without PDF
// support the direction is always DirectionNone.
func (p *Pipeline) Run(ctx context.Context, uploads []Upload, req Request) (*Payload, error) {
	if len(uploads) == 0 || uploads[0].Filename == "" {
		return nil, ErrEmptySubmission
	}
	if !p.pdfEnabled && req.Direction != DirectionNone {
		p.logger.Warn("Ignoring conversion direction, PDF support is disabled", "direction", req.Direction)
		req.Direction = DirectionNone
	}
	p.logger.Info("Starting conversion", "files", len(uploads), "direction", req.Direction,
		"width", req.Width, "height", req.Height, "format", req.Format)

	var results, pages []OutputUnit
	for i, u := range uploads {
		if err := ctx.Err(); err != nil {
			p.logger.Info("Conversion canceled", "processed", i, "error", err)
			return nil, err
		}
		if !p.gate.Allowed(u.Filename) {
			p.logger.Debug("Skipping file with disallowed extension", "filename", u.Filename)
			continue
		}
		name := SanitizeFilename(u.Filename)

		units, err := p.route(name, u.Data, req)
		if err != nil {
			p.logger.Warn("Skipping file that failed to convert", "filename", name, "error", err)
			continue
		}
		for _, unit := range units {
			if unit.Kind == UnitPendingPage {
				pages = append(pages, unit)
			} else {
				results = append(results, unit)
			}
		}
	}

	if req.Direction == DirectionImageToPDF {
		data, err := p.assemble(pages)
		if err == nil {
			p.logger.Info("Assembled PDF", "pages", len(pages), "size", len(data))
			return p.packager.PDF(data), nil
		}
		p.logger.Warn("Could not assemble PDF", "error", err)
	}

	switch len(results) {
	case 0:
		p.logger.Info("No file could be converted", "files", len(uploads))
		return nil, ErrNoOutput
	case 1:
		return p.packager.Single(results[0]), nil
	}
	payload, err := p.packager.Archive(results)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Packaged archive", "entries", len(results), "size", len(payload.Data))
	return payload, nil
}

// route dispatches one sanitized upload to the conversion path selected by
// the direction and the file's extension.
func (p *Pipeline) route(name string, data []byte, req Request) ([]OutputUnit, error) {
	isPDF := Ext(name) == "pdf"
	switch {
	case req.Direction == DirectionPDFToImage && isPDF:
		return p.pdfToImages(name, data)
	case req.Direction == DirectionImageToPDF && !isPDF:
		unit, err := p.preparePage(name, data, req)
		if err != nil {
			return nil, err
		}
		return []OutputUnit{unit}, nil
	default:
		unit, err := p.convertImage(name, data, req)
		if err != nil {
			return nil, err
		}
		return []OutputUnit{unit}, nil
	}
}

func (p *Pipeline) assemble(pages []OutputUnit) ([]byte, error) {
	data, err := AssemblePDF(pages, p.jpegQuality)
	if err != nil {
		return nil, err
	}
	if p.validatePDF {
		if err := ValidatePDF(data, len(pages)); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// IsNoOutput reports whether err means the submission produced nothing to
// download.
func IsNoOutput(err error) bool {
	return errors.Is(err, ErrEmptySubmission) || errors.Is(err, ErrNoOutput)
}
