// Package extractor produces UTF-8 text from a PDF, falling back to OCR when
// the native text layer is too thin to be useful.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
)

// Mode is the provenance of the extracted text.
type Mode string

const (
	ModeTextLayer Mode = "text_layer"
	ModeOCR       Mode = "ocr"
	ModeMixed     Mode = "mixed"
)

// Recognizer is the OcrEngine port: rasterise one page server-side and
// return its recognised text.
type Recognizer interface {
	Recognize(ctx context.Context, pdfBytes []byte, page int, scale float64, languages []string, psm string) (string, error)
}

// Result is what Extract returns on success.
type Result struct {
	Text string
	Mode Mode
}

// Extractor pulls text out of PDFs, reaching for OCR only when the native
// text layer falls short of text_threshold_chars.
type Extractor struct {
	cfg   config.ExtractorConfig
	ocr   config.OCRConfig
	rec   Recognizer
	langs []string
}

// New builds an Extractor. rec may be nil only if every input is expected to
// carry a sufficient text layer (tests exercising the text_layer-only path).
func New(cfg config.ExtractorConfig, ocrCfg config.OCRConfig, rec Recognizer) *Extractor {
	return &Extractor{
		cfg:   cfg,
		ocr:   ocrCfg,
		rec:   rec,
		langs: splitLanguages(ocrCfg.Languages),
	}
}

func splitLanguages(raw string) []string {
	if raw == "" {
		return []string{"rus", "eng"}
	}
	return strings.Split(raw, "+")
}

// Extract reads the native text layer page-by-page, joined by "\n\n"; if
// its non-whitespace character count clears text_threshold_chars, it returns
// that text trimmed. Otherwise it falls back page-by-page: a page whose own
// text layer reaches an even per-page share of the threshold keeps that
// text, and every other page is rasterised at render_scale and OCRed, so a
// PDF with some real text pages and some scanned pages reports
// extraction_mode "mixed".
func (e *Extractor) Extract(ctx context.Context, pdfBytes []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, errkind.Wrap(errkind.UnreadablePDF, "extractor: open pdf", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, errkind.New(errkind.UnreadablePDF, "extractor: pdf has no pages")
	}

	pageTexts := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageTexts[i-1] = text
	}

	fullText := strings.Join(pageTexts, "\n\n")
	if countNonWhitespace(fullText) >= e.cfg.TextThresholdChars {
		return &Result{Text: strings.TrimSpace(fullText), Mode: ModeTextLayer}, nil
	}

	return e.ocrFallback(ctx, pdfBytes, pageTexts, numPages)
}

func (e *Extractor) ocrFallback(ctx context.Context, pdfBytes []byte, pageTexts []string, numPages int) (*Result, error) {
	if e.rec == nil {
		return nil, errkind.New(errkind.OCRFailed, "extractor: text layer too thin and no OCR engine configured")
	}

	hadTextLayer := false
	ocrTexts := make([]string, numPages)
	for i := 0; i < numPages; i++ {
		if countNonWhitespace(pageTexts[i]) >= e.cfg.TextThresholdChars/numPages {
			ocrTexts[i] = pageTexts[i]
			hadTextLayer = true
			continue
		}
		text, err := e.rec.Recognize(ctx, pdfBytes, i, e.cfg.RenderScale, e.langs, e.ocr.PSM)
		if err != nil {
			return nil, errkind.Wrap(errkind.OCRFailed, fmt.Sprintf("extractor: ocr page %d", i), err)
		}
		ocrTexts[i] = text
	}

	fullText := strings.TrimSpace(strings.Join(ocrTexts, "\n\n"))
	if countNonWhitespace(fullText) == 0 {
		return nil, errkind.New(errkind.EmptyAfterOCR, "extractor: ocr produced no text")
	}

	mode := ModeOCR
	if hadTextLayer {
		mode = ModeMixed
	}
	return &Result{Text: fullText, Mode: mode}, nil
}

func countNonWhitespace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
