package payload

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naturethrive/birdmonitor/internal/errors"
)

// doubleEncode serializes doc a second time, the way the backend does for some endpoints.
func doubleEncode(t *testing.T, doc string) []byte {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return b
}

func TestNormalizeNativeAndDoubleEncodedAreEqual(t *testing.T) {
	docs := []string{
		`[{"bird":"Robin","date":"2024-05-01","count":3}]`,
		`[{"date":"2024-05-01","shannon_index":1.25}]`,
		`{"time": 1714521600.25}`,
		`[]`,
		`42`,
	}

	for _, doc := range docs {
		t.Run(doc, func(t *testing.T) {
			native, err := Normalize([]byte(doc))
			require.NoError(t, err)

			unwrapped, err := Normalize(doubleEncode(t, doc))
			require.NoError(t, err)

			assert.JSONEq(t, string(native), string(unwrapped))
		})
	}
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	raw, err := Normalize([]byte("  \n[1, 2]\t "))
	require.NoError(t, err)
	assert.Equal(t, "[1, 2]", string(raw))
}

func TestNormalizeUnwrapsExactlyOnce(t *testing.T) {
	// A triple-encoded document comes back as the double-encoded string
	doc := `[{"bird":"Jay","date":"2024-05-01","count":1}]`
	twice := doubleEncode(t, string(doubleEncode(t, doc)))

	raw, err := Normalize(twice)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, doc, s)
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"nil body", nil},
		{"empty body", []byte("")},
		{"whitespace", []byte("   ")},
		{"invalid json", []byte(`[{"bird":`)},
		{"trailing garbage", []byte(`[] []`)},
		{"string without json", []byte(`"hello world"`)},
		{"empty string", []byte(`""`)},
		{"html error page", []byte(`<html>502 Bad Gateway</html>`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Normalize(tt.body)
			require.Error(t, err)
			assert.Nil(t, raw)
			assert.True(t, errors.IsMalformedPayload(err), "expected malformed payload, got %v", err)
		})
	}
}

func TestDecode(t *testing.T) {
	type heartbeat struct {
		Time float64 `json:"time"`
	}

	t.Run("double encoded object", func(t *testing.T) {
		var hb heartbeat
		require.NoError(t, Decode(doubleEncode(t, `{"time": 12.5}`), &hb))
		assert.InDelta(t, 12.5, hb.Time, 1e-9)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		var hb heartbeat
		err := Decode([]byte(`[1,2,3]`), &hb)
		require.Error(t, err)
		assert.True(t, errors.IsMalformedPayload(err))
	})
}

func TestParse(t *testing.T) {
	v, err := Parse(doubleEncode(t, `[{"label":"Robin","total_count":7}]`))
	require.NoError(t, err)

	values, err := v.Array()
	require.NoError(t, err)
	require.Len(t, values, 1)

	obj, err := values[0].Object()
	require.NoError(t, err)
	label, err := obj.GetString("label")
	require.NoError(t, err)
	assert.Equal(t, "Robin", label)
}

func TestPreviewIsBounded(t *testing.T) {
	long := strings.Repeat("é", previewLen)
	p := preview([]byte(long))

	assert.True(t, strings.HasSuffix(p, "..."))
	assert.LessOrEqual(t, len(p), previewLen+3)
}
