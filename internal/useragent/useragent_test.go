package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingBoxVersion(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		expected  string
	}{
		{name: "release", userAgent: "SFA/1.11.4 (sing-box/1.11.4; Android 14)", expected: "1.11.4"},
		{name: "pre-release", userAgent: "sing-box/1.12.0-beta.3", expected: "1.12.0-beta.3"},
		{name: "case-insensitive", userAgent: "SING-BOX/1.10.1", expected: "1.10.1"},
		{name: "any build", userAgent: "SFI/1.12.0 (sing-box/1.12.0-any.7)", expected: "1.12.0"},
		{name: "unknown pre-release label keeps the triple", userAgent: "sing-box/1.12.0-dev.1", expected: "1.12.0"},
		{name: "other client", userAgent: "curl/8.5.0", expected: ""},
		{name: "empty", userAgent: "", expected: ""},
		{name: "truncated", userAgent: "sing-box/1.12", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseSingBoxVersion(tt.userAgent)
			if tt.expected == "" {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.expected, v.String())
		})
	}
}
