// Package api is the HTTP boundary of imgconv: the upload form, the
// multipart conversion endpoint and the download response headers.
package api

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"imgconv/internal/config"
	"imgconv/internal/converter"
)

//go:embed templates/*.html
var templateFS embed.FS

// cacheControl disables caching of every download.
const cacheControl = "no-cache, no-store, must-revalidate"

// targetFormats are offered in the form's convert_to select. pdf is added
// when PDF support is enabled.
var targetFormats = []string{"png", "jpg", "gif", "bmp", "tiff", "webp"}

// Handler serves the upload form and runs submissions through the pipeline.
type Handler struct {
	cfg      *config.Config
	pipeline *converter.Pipeline
	logger   *slog.Logger
}

// NewRouter wires the routes and middleware onto a new gin engine.
func NewRouter(cfg *config.Config, pipeline *converter.Pipeline, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{cfg: cfg, pipeline: pipeline, logger: logger}

	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxMultipartMemory
	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))
	router.Use(RequestLogger(logger), gin.Recovery())

	router.GET("/", h.Index)
	router.POST("/", LimitBody(cfg.MaxUploadBytes, logger), h.Convert)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// Index renders the upload form.
func (h *Handler) Index(c *gin.Context) {
	formats := targetFormats
	if h.cfg.PDFEnabled {
		formats = append(formats[:len(formats):len(formats)], "pdf")
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Formats":    formats,
		"PDFEnabled": h.cfg.PDFEnabled,
		"MaxMiB":     h.cfg.MaxUploadBytes >> 20,
	})
}

// Convert handles a multipart submission. Empty submissions and batches
// that produce nothing redirect back to the form.
func (h *Handler) Convert(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			h.logger.Warn("Upload exceeds size limit", "limit", h.cfg.MaxUploadBytes, "error", err)
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Info("No multipart form in submission", "error", err)
		h.redirectToForm(c)
		return
	}

	uploads := h.readUploads(form.File["files"])
	req := converter.ParseRequest(
		c.PostForm("width"),
		c.PostForm("height"),
		c.PostForm("convert_to"),
		c.PostForm("convert_direction"),
	)

	payload, err := h.pipeline.Run(c.Request.Context(), uploads, req)
	switch {
	case err == nil:
	case converter.IsNoOutput(err):
		h.logger.Info("Nothing to download, redirecting to form", "reason", err)
		h.redirectToForm(c)
		return
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Conversion canceled by client", "error", err)
		c.AbortWithStatus(http.StatusGatewayTimeout)
		return
	default:
		h.logger.Error("Conversion failed", "error", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	h.writePayload(c, payload)
}

// readUploads reads every file part into memory. A part that cannot be read
// keeps its name with no data, so it fails decoding like any corrupt file.
func (h *Handler) readUploads(files []*multipart.FileHeader) []converter.Upload {
	uploads := make([]converter.Upload, 0, len(files))
	for _, fh := range files {
		data, err := readFileHeader(fh)
		if err != nil {
			h.logger.Warn("Failed to read uploaded file", "filename", fh.Filename, "error", err)
		}
		uploads = append(uploads, converter.Upload{Filename: fh.Filename, Data: data})
	}
	return uploads
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) writePayload(c *gin.Context, payload *converter.Payload) {
	c.Header("Content-Disposition", ContentDisposition(payload.Filename))
	c.Header("Cache-Control", cacheControl)
	c.Header("Content-Length", strconv.Itoa(len(payload.Data)))
	h.logger.Info("Sending converted payload", "filename", payload.Filename, "contentType", payload.ContentType, "size", len(payload.Data))
	c.Data(http.StatusOK, payload.ContentType, payload.Data)
}

func (h *Handler) redirectToForm(c *gin.Context) {
	c.Redirect(http.StatusFound, "/")
}

// ContentDisposition builds an attachment header for filename. Non-ASCII
// names are encoded per RFC 2231.
func ContentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}
