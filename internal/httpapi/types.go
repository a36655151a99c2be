// Package httpapi is the inbound HTTP surface: synchronous attachment
// upload/ingest, semantic search, and health/readiness probes.
package httpapi

// UploadURLRequest is the body of POST /etl/upload-url.
type UploadURLRequest struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	LotID    string `json:"lot_id"`
}

// UploadResponse is the shared response shape for both upload endpoints.
type UploadResponse struct {
	Status           string  `json:"status"`
	DocID            int64   `json:"doc_id,omitempty"`
	FileName         string  `json:"file_name,omitempty"`
	FileSizeMB       float64 `json:"file_size_mb,omitempty"`
	Message          string  `json:"message"`
	EmbeddingPending bool    `json:"embedding_pending,omitempty"`
}

// ErrorBody is the body returned on every non-2xx response.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// SearchRequest is the body of POST /search. TopK is a pointer so an
// explicit `"top_k":0` can be distinguished from an omitted field: the
// former must fail validation, the latter defaults.
type SearchRequest struct {
	Query      string `json:"query"`
	TopK       *int   `json:"top_k,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// SearchResultItem is one hydrated hit in a SearchResponse.
type SearchResultItem struct {
	DocID          int64             `json:"doc_id"`
	FileName       string            `json:"file_name"`
	Score          float32           `json:"score"`
	Metadata       map[string]string `json:"metadata"`
	ContentPreview string            `json:"content_preview"`
}

// SearchResponse is the body of a successful POST /search.
type SearchResponse struct {
	Query      string             `json:"query"`
	Results    []SearchResultItem `json:"results"`
	TotalFound int                `json:"total_found"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Subsystems map[string]string `json:"subsystems,omitempty"`
}

// OCRReadyResponse is the body of GET /etl/ocr.
type OCRReadyResponse struct {
	Status       string `json:"status"`
	OCRAvailable bool   `json:"ocr_available"`
}
