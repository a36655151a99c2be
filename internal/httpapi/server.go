package httpapi

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/extractor"
	"github.com/zakupai/etl-core/internal/fetcher"
	"github.com/zakupai/etl-core/internal/indexer"
	"github.com/zakupai/etl-core/internal/models"
	"github.com/zakupai/etl-core/internal/query"
	"github.com/zakupai/etl-core/internal/unpacker"
)

// Fetcher is the subset of fetcher.Client the server needs.
type Fetcher interface {
	Fetch(ctx context.Context, url, authHeader string) (*fetcher.Result, error)
}

// Extractor is the subset of extractor.Extractor the server needs.
type Extractor interface {
	Extract(ctx context.Context, pdfBytes []byte) (*extractor.Result, error)
}

// Indexer is the subset of indexer.Indexer the server needs.
type Indexer interface {
	Index(ctx context.Context, lotID, fileName, fileType, content string) (*indexer.Result, error)
}

// Searcher is the subset of query.Service the server needs.
type Searcher interface {
	Search(ctx context.Context, queryText string, topK int, collection string) ([]query.Hit, error)
}

// Pinger is the shape every dependency that participates in health checks
// satisfies: RelationalStore, VectorStore, Embedder, OcrEngine, and LotFeed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the inbound HTTP surface.
type Config struct {
	Port     int
	MaxBytes int64
}

// Server wires the upload, search, and health endpoints together.
type Server struct {
	echo *echo.Echo

	fetch    Fetcher
	extract  Extractor
	index    Indexer
	search   Searcher
	maxBytes int64

	relStore    Pinger
	vectorStore Pinger
	embedder    Pinger
	ocr         Pinger
	lotFeed     Pinger

	logger *zap.Logger
}

// Subsystems groups the outbound adapters the health endpoint pings.
type Subsystems struct {
	RelStore    Pinger
	VectorStore Pinger
	Embedder    Pinger
	OCR         Pinger
	LotFeed     Pinger
}

// NewServer builds a Server and registers its routes.
func NewServer(
	fetch Fetcher,
	extract Extractor,
	index Indexer,
	search Searcher,
	maxBytes int64,
	subsystems Subsystems,
	logger *zap.Logger,
	metrics *Metrics,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:        e,
		fetch:       fetch,
		extract:     extract,
		index:       index,
		search:      search,
		maxBytes:    maxBytes,
		relStore:    subsystems.RelStore,
		vectorStore: subsystems.VectorStore,
		embedder:    subsystems.Embedder,
		ocr:         subsystems.OCR,
		lotFeed:     subsystems.LotFeed,
		logger:      logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/etl/ocr", s.handleOCRReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/etl/upload-url", s.handleUploadURL)
	s.echo.POST("/etl/upload", s.handleUpload)
	s.echo.POST("/search", s.handleSearch)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleUploadURL(c echo.Context) error {
	var req UploadURLRequest
	if err := c.Bind(&req); err != nil {
		return errResponse(c, http.StatusBadRequest, errkind.Validation, "malformed request body")
	}
	if req.FileURL == "" || req.FileName == "" || req.LotID == "" {
		return errResponse(c, http.StatusBadRequest, errkind.Validation, "file_url, file_name, and lot_id are required")
	}

	ctx := c.Request().Context()
	result, err := s.fetch.Fetch(ctx, req.FileURL, "")
	if err != nil {
		return s.failedIngest(c, err)
	}

	return s.ingestBytes(c, req.LotID, req.FileName, result.Bytes)
}

func (s *Server) handleUpload(c echo.Context) error {
	lotID := c.FormValue("lot_id")
	if lotID == "" {
		return errResponse(c, http.StatusBadRequest, errkind.Validation, "lot_id is required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errResponse(c, http.StatusBadRequest, errkind.Validation, "file field is required")
	}
	if fileHeader.Size > s.maxBytes {
		return errResponse(c, http.StatusRequestEntityTooLarge, errkind.TooLarge, "file exceeds max_file_bytes")
	}

	data, err := readMultipartFile(fileHeader)
	if err != nil {
		return errResponse(c, http.StatusBadRequest, errkind.Validation, "could not read uploaded file")
	}
	if int64(len(data)) > s.maxBytes {
		return errResponse(c, http.StatusRequestEntityTooLarge, errkind.TooLarge, "file exceeds max_file_bytes")
	}

	return s.ingestBytes(c, lotID, fileHeader.Filename, data)
}

func readMultipartFile(fileHeader *multipart.FileHeader) ([]byte, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ingestBytes unpacks, extracts, and indexes every unit found in data,
// synchronously. Unlike the queued worker-pool path, this always runs within
// the HTTP request and returns the first indexed document's identity.
func (s *Server) ingestBytes(c echo.Context, lotID, fileName string, data []byte) error {
	ctx := c.Request().Context()

	units, err := unpacker.Unpack(data, fileName, s.maxBytes)
	if err != nil {
		return s.failedIngest(c, err)
	}

	var first *indexer.Result
	var firstName string
	indexed := 0
	anyPending := false
	for _, unit := range units {
		extracted, err := s.extract.Extract(ctx, unit.PDFBytes)
		if err != nil {
			return s.failedIngest(c, err)
		}
		result, err := s.index.Index(ctx, lotID, unit.FileName, "pdf", extracted.Text)
		if err != nil {
			return s.failedIngest(c, err)
		}
		if result.Action == models.IndexEmbeddingPending {
			anyPending = true
		}
		indexed++
		if first == nil {
			first = result
			firstName = unit.FileName
		}
	}

	message := fmt.Sprintf("indexed %d document(s)", indexed)
	if first.Action == models.IndexDuplicateKept {
		message = "document already indexed"
	} else if anyPending {
		message = "document persisted; embedding pending"
	}

	return c.JSON(http.StatusOK, UploadResponse{
		Status:           "ok",
		DocID:            first.DocID,
		FileName:         firstName,
		FileSizeMB:       float64(len(data)) / (1024 * 1024),
		Message:          message,
		EmbeddingPending: anyPending,
	})
}

func (s *Server) failedIngest(c echo.Context, err error) error {
	kind := errkind.KindOf(err)
	return errResponse(c, statusForKind(kind), kind, err.Error())
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return errResponse(c, http.StatusBadRequest, errkind.Validation, "malformed request body")
	}

	topK := 5
	if req.TopK != nil {
		topK = *req.TopK
	}
	hits, err := s.search.Search(c.Request().Context(), req.Query, topK, req.Collection)
	if err != nil {
		kind := errkind.KindOf(err)
		status := http.StatusServiceUnavailable
		if kind == errkind.Validation {
			status = http.StatusBadRequest
		}
		return errResponse(c, status, kind, err.Error())
	}

	results := make([]SearchResultItem, len(hits))
	for i, h := range hits {
		results[i] = SearchResultItem{
			DocID:          h.DocID,
			FileName:       h.FileName,
			Score:          h.Score,
			Metadata:       h.Metadata,
			ContentPreview: h.ContentPreview,
		}
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Query:      req.Query,
		Results:    results,
		TotalFound: len(results),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	subsystems := map[string]string{
		"relstore":    pingStatus(ctx, s.relStore),
		"vectorstore": pingStatus(ctx, s.vectorStore),
		"embedder":    pingStatus(ctx, s.embedder),
		"ocr":         pingStatus(ctx, s.ocr),
		"lot_feed":    pingStatus(ctx, s.lotFeed),
	}

	status := "ok"
	httpStatus := http.StatusOK
	if subsystems["relstore"] != "ok" {
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	} else if subsystems["embedder"] != "ok" || subsystems["vectorstore"] != "ok" {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, HealthResponse{Status: status, Subsystems: subsystems})
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "unknown"
	}
	if err := p.Ping(ctx); err != nil {
		return "unavailable"
	}
	return "ok"
}

func (s *Server) handleOCRReady(c echo.Context) error {
	if s.ocr == nil {
		return c.JSON(http.StatusOK, OCRReadyResponse{Status: "unavailable", OCRAvailable: false})
	}
	if err := s.ocr.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusOK, OCRReadyResponse{Status: "unavailable", OCRAvailable: false})
	}
	return c.JSON(http.StatusOK, OCRReadyResponse{Status: "ready", OCRAvailable: true})
}

func errResponse(c echo.Context, status int, kind errkind.Kind, detail string) error {
	return c.JSON(status, ErrorBody{Error: string(kind), Detail: detail})
}

// statusForKind maps an internal error kind to the HTTP status code ingest
// endpoints surface to callers.
func statusForKind(kind errkind.Kind) int {
	switch kind {
	case errkind.Validation, errkind.UnsupportedType, errkind.CorruptArchive,
		errkind.ArchiveBomb, errkind.NoPDFInArchive, errkind.UnreadablePDF, errkind.EmptyAfterOCR:
		return http.StatusBadRequest
	case errkind.TooLarge:
		return http.StatusRequestEntityTooLarge
	case errkind.EmbedUnavailable, errkind.VectorStoreUnavailable, errkind.DBUnavailable:
		return http.StatusServiceUnavailable
	case errkind.Network, errkind.Timeout, errkind.HTTPStatus5xx, errkind.HTTPStatus4xx, errkind.OCRFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
