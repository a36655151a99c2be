package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/extractor"
	"github.com/zakupai/etl-core/internal/fetcher"
	"github.com/zakupai/etl-core/internal/indexer"
	"github.com/zakupai/etl-core/internal/models"
	"github.com/zakupai/etl-core/internal/query"
)

type fakeFetcher struct {
	bytes []byte
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, authHeader string) (*fetcher.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fetcher.Result{Bytes: f.bytes}, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, pdfBytes []byte) (*extractor.Result, error) {
	return &extractor.Result{Text: "extracted content", Mode: extractor.ModeTextLayer}, nil
}

type fakeIndexer struct {
	nextID int64
	action models.IndexAction
}

func (f *fakeIndexer) Index(ctx context.Context, lotID, fileName, fileType, content string) (*indexer.Result, error) {
	f.nextID++
	action := f.action
	if action == "" {
		action = models.IndexInserted
	}
	return &indexer.Result{DocID: f.nextID, Action: action}, nil
}

type fakeSearcher struct {
	hits      []query.Hit
	err       error
	gotTopK   int
	sawTopK   bool
}

func (f *fakeSearcher) Search(ctx context.Context, queryText string, topK int, collection string) ([]query.Hit, error) {
	f.gotTopK = topK
	f.sawTopK = true
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(fetch Fetcher, search Searcher, subsystems Subsystems) *Server {
	return NewServer(fetch, fakeExtractor{}, &fakeIndexer{}, search, 1<<20, subsystems, nil, nil)
}

func newTestServerWithIndexer(fetch Fetcher, index Indexer, search Searcher, subsystems Subsystems) *Server {
	return NewServer(fetch, fakeExtractor{}, index, search, 1<<20, subsystems, nil, nil)
}

func TestHandleUploadURL_Success(t *testing.T) {
	s := newTestServer(&fakeFetcher{bytes: []byte("%PDF-1.4\nfake")}, &fakeSearcher{}, Subsystems{})

	body, _ := json.Marshal(UploadURLRequest{FileURL: "http://x/a.pdf", FileName: "a.pdf", LotID: "lot-1"})
	req := httptest.NewRequest(http.MethodPost, "/etl/upload-url", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.DocID)
}

func TestHandleUploadURL_MissingFields(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, &fakeSearcher{}, Subsystems{})

	body, _ := json.Marshal(UploadURLRequest{FileName: "a.pdf"})
	req := httptest.NewRequest(http.MethodPost, "/etl/upload-url", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadURL_TooLargeMapsTo413(t *testing.T) {
	s := newTestServer(&fakeFetcher{err: errkind.New(errkind.TooLarge, "too big")}, &fakeSearcher{}, Subsystems{})

	body, _ := json.Marshal(UploadURLRequest{FileURL: "http://x/a.pdf", FileName: "a.pdf", LotID: "lot-1"})
	req := httptest.NewRequest(http.MethodPost, "/etl/upload-url", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func buildMultipartUpload(t *testing.T, fieldsExtra map[string]string, fileName string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fieldsExtra {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(fileContent)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleUpload_BarePDF(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, &fakeSearcher{}, Subsystems{})

	buf, contentType := buildMultipartUpload(t, map[string]string{"lot_id": "lot-1"}, "a.pdf", []byte("%PDF-1.4\nfake"))
	req := httptest.NewRequest(http.MethodPost, "/etl/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleUpload_ZipWithNoPDFs(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, &fakeSearcher{}, Subsystems{})

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	f, err := zw.Create("readme.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("not a pdf"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	buf, contentType := buildMultipartUpload(t, map[string]string{"lot_id": "lot-1"}, "bundle.zip", zipBuf.Bytes())
	req := httptest.NewRequest(http.MethodPost, "/etl/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadURL_EmbeddingPendingOnVectorStoreOutage(t *testing.T) {
	s := newTestServerWithIndexer(&fakeFetcher{bytes: []byte("%PDF-1.4\nfake")}, &fakeIndexer{action: models.IndexEmbeddingPending}, &fakeSearcher{}, Subsystems{})

	body, _ := json.Marshal(UploadURLRequest{FileURL: "http://x/a.pdf", FileName: "a.pdf", LotID: "lot-1"})
	req := httptest.NewRequest(http.MethodPost, "/etl/upload-url", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.EmbeddingPending)
}

func TestHandleUpload_MissingLotID(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, &fakeSearcher{}, Subsystems{})

	buf, contentType := buildMultipartUpload(t, nil, "a.pdf", []byte("%PDF-1.4\nfake"))
	req := httptest.NewRequest(http.MethodPost, "/etl/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_Success(t *testing.T) {
	search := &fakeSearcher{hits: []query.Hit{{DocID: 1, FileName: "a.pdf", Score: 0.9, ContentPreview: "hi"}}}
	s := newTestServer(&fakeFetcher{}, search, Subsystems{})

	body, _ := json.Marshal(SearchRequest{Query: "school"})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalFound)
}

func TestHandleSearch_UnavailableMapsTo503(t *testing.T) {
	search := &fakeSearcher{err: errkind.New(errkind.VectorStoreUnavailable, "down")}
	s := newTestServer(&fakeFetcher{}, search, Subsystems{})

	body, _ := json.Marshal(SearchRequest{Query: "school"})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSearch_ExplicitZeroTopKNotDefaulted(t *testing.T) {
	search := &fakeSearcher{err: errkind.New(errkind.Validation, "top_k must be between 1 and 50")}
	s := newTestServer(&fakeFetcher{}, search, Subsystems{})

	body := []byte(`{"query":"school","top_k":0}`)
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, search.sawTopK)
	assert.Equal(t, 0, search.gotTopK)
}

func TestHandleSearch_OmittedTopKDefaultsToFive(t *testing.T) {
	search := &fakeSearcher{}
	s := newTestServer(&fakeFetcher{}, search, Subsystems{})

	body := []byte(`{"query":"school"}`)
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, search.gotTopK)
}

func TestHandleHealth_OKWhenAllReachable(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, &fakeSearcher{}, Subsystems{
		RelStore: &fakePinger{}, VectorStore: &fakePinger{}, Embedder: &fakePinger{}, OCR: &fakePinger{}, LotFeed: &fakePinger{},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"status":"ok"`))
}

func TestHandleHealth_DegradedWhenEmbedderDown(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, &fakeSearcher{}, Subsystems{
		RelStore: &fakePinger{}, VectorStore: &fakePinger{}, Embedder: &fakePinger{err: errkind.New(errkind.EmbedUnavailable, "down")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"status":"degraded"`))
}

func TestHandleHealth_UnavailableWhenRelStoreDown(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, &fakeSearcher{}, Subsystems{
		RelStore: &fakePinger{err: errkind.New(errkind.DBUnavailable, "down")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"status":"unavailable"`))
}

func TestHandleOCRReady_Ready(t *testing.T) {
	s := newTestServer(&fakeFetcher{}, &fakeSearcher{}, Subsystems{OCR: &fakePinger{}})

	req := httptest.NewRequest(http.MethodGet, "/etl/ocr", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp OCRReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OCRAvailable)
}
