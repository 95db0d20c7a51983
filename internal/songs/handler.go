package songs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/metrics"
)

const (
	// DefaultMaxUploadSize bounds the request body.
	DefaultMaxUploadSize = 10 << 20

	// DefaultFilename is used for raw uploads without an X-Filename header.
	DefaultFilename = "unknown.mid"

	tracerName = "midirelay/songs"
)

var errNoFile = errors.New("no file found in upload")

// UploadResponse is the success body of an upload.
type UploadResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration int    `json:"duration"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithTracer replaces the tracer from the global provider.
func WithTracer(t trace.Tracer) HandlerOption {
	return func(h *Handler) {
		h.tracer = t
	}
}

// WithMaxUploadSize sets the body size limit in bytes.
func WithMaxUploadSize(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxSize = n
		}
	}
}

// Handler accepts song uploads: POST with either a multipart form (the first
// part carrying a file name) or the raw file with its name in X-Filename.
type Handler struct {
	store   Store
	catalog *Catalog
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	maxSize int64
}

// NewHandler creates an upload handler writing to store and catalog.
func NewHandler(store Store, catalog *Catalog, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:   store,
		catalog: catalog,
		logger:  zap.NewNop(),
		maxSize: DefaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tracer == nil {
		h.tracer = otel.Tracer(tracerName)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "songs.upload", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)

	filename, data, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, span, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		h.fail(w, span, err)
		return
	}
	span.SetAttributes(
		attribute.String("songs.filename", filename),
		attribute.Int("songs.size", len(data)))

	song, err := Prepare(filename, data)
	switch {
	case errors.Is(err, ErrUnsupportedType):
		h.reject(w, span, http.StatusBadRequest, "Only .mid/.midi files are accepted")
		return
	case errors.Is(err, ErrEmptyName):
		h.reject(w, span, http.StatusBadRequest, "Invalid file name")
		return
	case err != nil:
		h.fail(w, span, err)
		return
	}

	if err := h.store.Put(ctx, song.ID, song.Data); err != nil {
		h.fail(w, span, err)
		return
	}
	added, err := h.catalog.Add(NewEntry(song))
	if err != nil {
		h.fail(w, span, err)
		return
	}

	span.SetAttributes(
		attribute.String("songs.id", song.ID),
		attribute.Int("songs.duration", song.Duration),
		attribute.Bool("songs.catalog_added", added))
	span.SetStatus(codes.Ok, "")
	h.metrics.Upload(metrics.UploadOK)
	h.logger.Info("Uploaded song",
		zap.String("id", song.ID),
		zap.Int("duration", song.Duration),
		zap.Bool("new", added))

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:  true,
		ID:       song.ID,
		Title:    song.Title,
		Duration: song.Duration,
	})
}

func (h *Handler) reject(w http.ResponseWriter, span trace.Span, status int, msg string) {
	span.SetStatus(codes.Error, msg)
	h.metrics.Upload(metrics.UploadRejected)
	h.logger.Info("Upload rejected", zap.Int("status", status), zap.String("reason", msg))
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) fail(w http.ResponseWriter, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.metrics.Upload(metrics.UploadFailed)
	h.logger.Error("Upload failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// readUpload extracts the file name and bytes from either request shape.
func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		filename := r.Header.Get("X-Filename")
		if filename == "" {
			filename = DefaultFilename
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, fmt.Errorf("read body: %w", err)
		}
		return filename, data, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, fmt.Errorf("read multipart: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil, errNoFile
		}
		if err != nil {
			return "", nil, fmt.Errorf("read multipart: %w", err)
		}
		name := part.FileName()
		if name == "" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return "", nil, fmt.Errorf("read multipart: %w", err)
		}
		return name, data, nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

