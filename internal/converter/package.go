package converter

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zip"
)

// PayloadKind is the shape of the response body.
type PayloadKind int

const (
	PayloadSingle PayloadKind = iota
	PayloadArchive
	PayloadPDF
)

// PDFName is the download name of an assembled image_to_pdf document.
const PDFName = "converted.pdf"

// Payload is the final downloadable result of one submission.
type Payload struct {
	Kind        PayloadKind
	Filename    string
	ContentType string
	Data        []byte
}

// Packager turns output units into a Payload.
type Packager struct {
	archiveName string
	logger      *slog.Logger
}

// NewPackager returns a Packager whose ZIP downloads are named archiveName.
func NewPackager(archiveName string, logger *slog.Logger) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{archiveName: archiveName, logger: logger}
}

// Single wraps one encoded unit, typed by its extension.
func (p *Packager) Single(u OutputUnit) *Payload {
	return &Payload{
		Kind:        PayloadSingle,
		Filename:    u.Name,
		ContentType: MIMEType(Ext(u.Name)),
		Data:        u.Data,
	}
}

// PDF wraps an assembled document.
func (p *Packager) PDF(data []byte) *Payload {
	return &Payload{
		Kind:        PayloadPDF,
		Filename:    PDFName,
		ContentType: MIMEType("pdf"),
		Data:        data,
	}
}

// Archive writes every unit into a deflated ZIP. When two units share a
// name the later data wins and the entry keeps the position of the first.
func (p *Packager) Archive(units []OutputUnit) (*Payload, error) {
	order := make([]string, 0, len(units))
	entries := make(map[string][]byte, len(units))
	for _, u := range units {
		if _, dup := entries[u.Name]; dup {
			p.logger.Warn("Duplicate archive entry, keeping the last one", "name", u.Name)
		} else {
			order = append(order, u.Name)
		}
		entries[u.Name] = u.Data
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("could not add %s to archive: %w", name, err)
		}
		if _, err := w.Write(entries[name]); err != nil {
			return nil, fmt.Errorf("could not write %s to archive: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish archive: %w", err)
	}
	return &Payload{
		Kind:        PayloadArchive,
		Filename:    p.archiveName,
		ContentType: MIMEType("zip"),
		Data:        buf.Bytes(),
	}, nil
}
