package unpacker

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakupai/etl-core/internal/errkind"
)

func fakePDF() []byte {
	return []byte("%PDF-1.4\n%fake\n1 0 obj\n<<>>\nendobj\n%%EOF")
}

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestUnpack_BarePDF(t *testing.T) {
	units, err := Unpack(fakePDF(), "lot-123.pdf", 1<<20)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "lot-123.pdf", units[0].FileName)
}

func TestUnpack_ZipWithPDFs(t *testing.T) {
	zipBytes := buildZip(t, map[string][]byte{
		"docs/a.pdf": fakePDF(),
		"b.PDF":      fakePDF(),
		"notes.txt":  []byte("ignore me"),
	})
	units, err := Unpack(zipBytes, "bundle.zip", 1<<20)
	require.NoError(t, err)
	require.Len(t, units, 2)
}

func TestUnpack_ZipBasenameCollision(t *testing.T) {
	zipBytes := buildZip(t, map[string][]byte{
		"a/doc.pdf": fakePDF(),
		"b/doc.pdf": fakePDF(),
	})
	units, err := Unpack(zipBytes, "bundle.zip", 1<<20)
	require.NoError(t, err)
	require.Len(t, units, 2)
	names := map[string]bool{units[0].FileName: true, units[1].FileName: true}
	assert.True(t, names["doc.pdf"])
	assert.True(t, names["doc.pdf#1"])
}

func TestUnpack_ZipNoPDFs(t *testing.T) {
	zipBytes := buildZip(t, map[string][]byte{"notes.txt": []byte("x")})
	_, err := Unpack(zipBytes, "bundle.zip", 1<<20)
	require.Error(t, err)
	assert.Equal(t, errkind.NoPDFInArchive, errkind.KindOf(err))
}

func TestUnpack_UnsupportedType(t *testing.T) {
	_, err := Unpack([]byte("just some random bytes that are neither"), "x", 1<<20)
	require.Error(t, err)
	assert.Equal(t, errkind.UnsupportedType, errkind.KindOf(err))
}

func TestUnpack_ArchiveBomb(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 2000)
	zipBytes := buildZip(t, map[string][]byte{"huge.pdf": append(fakePDF(), big...)})
	_, err := Unpack(zipBytes, "bundle.zip", 100)
	require.Error(t, err)
	assert.Equal(t, errkind.ArchiveBomb, errkind.KindOf(err))
}
