// Package unpacker normalises a fetched buffer into an ordered sequence of
// PDF units: a bare PDF yields one unit, a ZIP yields one unit per
// contained .pdf entry.
package unpacker

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"

	"github.com/zakupai/etl-core/internal/errkind"
)

// Unit is one PDF extracted from the input buffer, named for traceability
// back to the original archive entry (or the input file name for bare PDFs).
type Unit struct {
	FileName string
	PDFBytes []byte
}

// archiveBombFactor rejects archives whose declared uncompressed total
// exceeds max_bytes * 10.
const archiveBombFactor = 10

// Unpack inspects buf's magic bytes and returns its PDF units. declaredName
// is used as the sole unit's file name when buf is a bare PDF.
func Unpack(buf []byte, declaredName string, maxBytes int64) ([]Unit, error) {
	kind, err := filetype.Match(buf)
	if err != nil {
		return nil, errkind.Wrap(errkind.UnsupportedType, "unpacker: detect type", err)
	}

	switch {
	case kind == matchers.TypePdf:
		return []Unit{{FileName: declaredName, PDFBytes: buf}}, nil
	case kind == matchers.TypeZip:
		return unpackZip(buf, maxBytes)
	default:
		return nil, errkind.New(errkind.UnsupportedType, fmt.Sprintf("unpacker: neither PDF nor ZIP magic (detected %q)", kind.Extension))
	}
}

func unpackZip(buf []byte, maxBytes int64) ([]Unit, error) {
	reader, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, errkind.Wrap(errkind.CorruptArchive, "unpacker: invalid zip header", err)
	}

	var declaredTotal uint64
	for _, f := range reader.File {
		declaredTotal += f.UncompressedSize64
	}
	if maxBytes > 0 && declaredTotal > uint64(maxBytes)*archiveBombFactor {
		return nil, errkind.New(errkind.ArchiveBomb, "unpacker: declared uncompressed size exceeds max_bytes*10")
	}

	seen := make(map[string]int)
	units := make([]Unit, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(f.Name), ".pdf") {
			continue
		}
		if maxBytes > 0 && f.UncompressedSize64 > uint64(maxBytes) {
			continue
		}

		base := filepath.Base(f.Name)
		name := base
		if n, ok := seen[base]; ok {
			name = fmt.Sprintf("%s#%d", base, n)
		}
		seen[base]++

		rc, err := f.Open()
		if err != nil {
			return nil, errkind.Wrap(errkind.CorruptArchive, "unpacker: open entry "+f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errkind.Wrap(errkind.CorruptArchive, "unpacker: read entry "+f.Name, err)
		}

		units = append(units, Unit{FileName: name, PDFBytes: data})
	}

	if len(units) == 0 {
		return nil, errkind.New(errkind.NoPDFInArchive, "unpacker: archive contains no .pdf entries within size cap")
	}
	return units, nil
}
