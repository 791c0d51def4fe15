package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	t.Setenv("BM_TEST_KEY", "abc123")
	t.Setenv("BM_TEST_HOST", "sentry.example")
	t.Setenv("BM_TEST_EMPTY", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "empty", input: "", want: ""},
		{name: "literal", input: "https://key@sentry.example/1", want: "https://key@sentry.example/1"},
		{name: "whole value", input: "${BM_TEST_KEY}", want: "abc123"},
		{name: "embedded", input: "https://${BM_TEST_KEY}@${BM_TEST_HOST}/1", want: "https://abc123@sentry.example/1"},
		{name: "fallback unused", input: "${BM_TEST_KEY:-other}", want: "abc123"},
		{name: "fallback used", input: "${BM_TEST_UNSET:-other}", want: "other"},
		{name: "empty fallback", input: "${BM_TEST_UNSET:-}", want: ""},
		{name: "empty variable counts as unset", input: "${BM_TEST_EMPTY}", wantErr: "BM_TEST_EMPTY"},
		{name: "all missing listed", input: "${BM_TEST_A}-${BM_TEST_B}", wantErr: "BM_TEST_A, BM_TEST_B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeSecret(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dsn")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	t.Run("trims trailing newlines only", func(t *testing.T) {
		t.Parallel()
		got, err := ReadFile(writeSecret(t, " value \r\n", 0o600))
		require.NoError(t, err)
		assert.Equal(t, " value ", got)
	})

	t.Run("permissive file is accepted", func(t *testing.T) {
		t.Parallel()
		got, err := ReadFile(writeSecret(t, "value\n", 0o644))
		require.NoError(t, err)
		assert.Equal(t, "value", got)
	})

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile("")
		require.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(filepath.Join(t.TempDir(), "absent"))
		require.ErrorContains(t, err, "not found")
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(t.TempDir())
		require.ErrorContains(t, err, "not a regular file")
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(writeSecret(t, strings.Repeat("x", maxFileSize+1), 0o600))
		require.ErrorContains(t, err, "too large")
	})

	t.Run("blank", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(writeSecret(t, "\n", 0o600))
		require.ErrorContains(t, err, "empty")
	})
}

func TestResolve(t *testing.T) {
	t.Setenv("BM_TEST_DSN", "https://env@sentry.example/1")

	path := writeSecret(t, "https://file@sentry.example/1\n", 0o600)

	got, err := Resolve(path, "${BM_TEST_DSN}")
	require.NoError(t, err)
	assert.Equal(t, "https://file@sentry.example/1", got, "file wins over value")

	got, err = Resolve("", "${BM_TEST_DSN}")
	require.NoError(t, err)
	assert.Equal(t, "https://env@sentry.example/1", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Resolve(filepath.Join(t.TempDir(), "absent"), "literal")
	require.ErrorContains(t, err, "failed to read secret from file")
}
