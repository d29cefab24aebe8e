package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{"log":{"level":"warn"},"outbounds":[{"type":"direct","tag":"direct"},{"type":"vmess","tag":"hk-01","server_port":443,"weight":1.5}],"dns":null,"experimental":{"enabled":true}}`

func TestWrite(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		selector string
		want     string
	}{
		{
			name:   "json is indented",
			format: FormatJSON,
			want: `{
  "log": {
    "level": "warn"
  },
  "outbounds": [
    {
      "type": "direct",
      "tag": "direct"
    },
    {
      "type": "vmess",
      "tag": "hk-01",
      "server_port": 443,
      "weight": 1.5
    }
  ],
  "dns": null,
  "experimental": {
    "enabled": true
  }
}
`,
		},
		{
			name:   "yaml keeps key order",
			format: FormatYAML,
			want: `log:
  level: warn
outbounds:
  - type: direct
    tag: direct
  - type: vmess
    tag: hk-01
    server_port: 443
    weight: 1.5
dns: null
experimental:
  enabled: true
`,
		},
		{
			name:     "selector prints strings bare",
			selector: "$.outbounds[*].tag",
			want:     "direct\nhk-01\n",
		},
		{
			name:     "selector without matches prints nothing",
			selector: "$.route",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, []byte(sample), tt.format, tt.selector))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteSelectionObject(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []byte(sample), "", "$.log"))
	assert.Contains(t, buf.String(), `"level"`)
	assert.Contains(t, buf.String(), `"warn"`)
}

func TestWriteErrors(t *testing.T) {
	var buf bytes.Buffer

	err := Write(&buf, []byte(sample), "toml", "")
	assert.ErrorContains(t, err, "unknown output format")

	err = Write(&buf, []byte(sample), FormatJSON, "$.outbounds[")
	assert.ErrorContains(t, err, "invalid selector")

	err = Write(&buf, []byte(`{"a":`), FormatYAML, "")
	assert.Error(t, err)
}
