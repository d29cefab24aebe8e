package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	tests := []struct {
		name     string
		info     Info
		expected string
	}{
		{name: "unknown commit", info: Info{Version: "v0.2.0", GitCommit: "unknown"}, expected: "v0.2.0"},
		{name: "release", info: Info{Version: "v0.2.0", GitCommit: "1a2b3c4d5e"}, expected: "v0.2.0 (1a2b3c4)"},
		{name: "dev build", info: Info{Version: "dev", GitCommit: "1a2b3c4d5e"}, expected: "dev-1a2b3c4"},
		{name: "dirty tree", info: Info{Version: "dev", GitCommit: "1a2b3c4d5e", Modified: true}, expected: "dev-1a2b3c4-dirty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.info.Short())
		})
	}
}

func TestString(t *testing.T) {
	info := Info{
		Version:   "v1.0.0",
		GitCommit: "abc",
		BuildTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		GoVersion: "go1.25.0",
		Platform:  "linux/amd64",
	}
	assert.Equal(t, "Version: v1.0.0\nCommit: abc\nBuilt: 2026-01-02T03:04:05Z\nGo: go1.25.0\nPlatform: linux/amd64", info.String())

	info.GitCommit = "unknown"
	info.BuildTime = time.Time{}
	assert.Equal(t, "Version: v1.0.0\nGo: go1.25.0\nPlatform: linux/amd64", info.String())
}

func TestIsRelease(t *testing.T) {
	assert.True(t, Info{Version: "v1.0.0"}.IsRelease())
	assert.False(t, Info{Version: "dev"}.IsRelease())
	assert.False(t, Info{Version: "dev-1a2b3c4"}.IsRelease())
	assert.False(t, Info{Version: "v1.0.0", Modified: true}.IsRelease())
}

func TestGet(t *testing.T) {
	old := BuildTime
	BuildTime = "2026-03-04T05:06:07Z"
	t.Cleanup(func() { BuildTime = old })

	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
	assert.Equal(t, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), info.BuildTime)
}
