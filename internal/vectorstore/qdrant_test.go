package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zakupai/etl-core/internal/errkind"
)

func TestValidateCollectionName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"etl_documents", false},
		{"", true},
		{"Has-Upper", true},
		{"has space", true},
		{"../traversal", true},
	}
	for _, tc := range cases {
		err := ValidateCollectionName(tc.name)
		if tc.wantErr {
			require.Error(t, err)
			assert.Equal(t, errkind.Validation, errkind.KindOf(err))
		} else {
			require.NoError(t, err)
		}
	}
}

func TestParseQdrantURL(t *testing.T) {
	host, port, tls, err := parseQdrantURL("localhost:6334")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 6334, port)
	assert.False(t, tls)

	host, port, tls, err = parseQdrantURL("tls://qdrant.internal:6334")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", host)
	assert.Equal(t, 6334, port)
	assert.True(t, tls)

	_, _, _, err = parseQdrantURL("not-a-valid-url")
	require.Error(t, err)
}
