package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     *Context
		want    string
		release string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2024-05-01"), want: UnknownValue},
		{name: "valid version", ctx: NewContext("v1.0.0", "2024-05-01"), want: "v1.0.0", release: "v1.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.ctx.GetVersion())
			assert.Equal(t, tt.release, tt.ctx.ReleaseVersion())
		})
	}
}

func TestContextString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "v1.0.0 (built 2024-05-01)", NewContext("v1.0.0", "2024-05-01").String())
	assert.Equal(t, "unknown (built unknown)", NewContext("", "").String())
	assert.Equal(t, UnknownValue, (*Context)(nil).GetBuildDate())
}
