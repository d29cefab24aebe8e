package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/boxrender/internal/cache"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestCacheKey(t *testing.T) {
	url := "https://example.com/nodes.json"
	out, err := executeCommand(t, "cache", "key", url)
	require.NoError(t, err)
	assert.Equal(t, cache.Key(url)+"  "+url+"\n", out)
}

func TestCacheKeyRequiresURL(t *testing.T) {
	_, err := executeCommand(t, "cache", "key")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version", "--format", "json", "--short=false")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got, "version")
	assert.Contains(t, got, "go_version")
	assert.Contains(t, got, "is_release")

	out, err = executeCommand(t, "version", "--format", "text", "--short=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: ")

	_, err = executeCommand(t, "version", "--format", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func writeEntry(t *testing.T) string {
	t.Helper()

	entry := filepath.Join(t.TempDir(), "entry")
	require.NoError(t, os.Mkdir(entry, 0o755))

	files := map[string]string{
		"config.json": `{
			"resources": [{"tag": "nodes", "from": "local", "local_path": "nodes.json", "options": {"tag_prefix": "x-"}}],
			"templates": [{"tag": "t", "from": "inline", "payload": {"outbounds": [{"type": "selector", "tag": "g"}]},
				"options": {"append": {"outbounds": {"nodes": null}}, "append_groups": {"g": null}}}]
		}`,
		"nodes.json": `{"outbounds": [{"type": "vmess", "tag": "n1"}, {"type": "trojan", "tag": "n2"}]}`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(entry, name), []byte(body), 0o600))
	}
	return entry
}

func TestRender(t *testing.T) {
	entry := writeEntry(t)
	manifestPath := filepath.Join(entry, "config.json")

	t.Run("select", func(t *testing.T) {
		out, err := executeCommand(t, "render",
			"--manifest", manifestPath, "--files", entry, "--cache", "none",
			"--output", "json", "--select", "$.outbounds[*].tag")
		require.NoError(t, err)
		assert.Equal(t, "g\nx-n1\nx-n2\n", out)
	})

	t.Run("json", func(t *testing.T) {
		out, err := executeCommand(t, "render",
			"--manifest", manifestPath, "--files", entry, "--cache", "none",
			"--output", "json", "--select", "")
		require.NoError(t, err)

		var got struct {
			Outbounds []struct {
				Tag       string   `json:"tag"`
				Outbounds []string `json:"outbounds"`
			} `json:"outbounds"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got.Outbounds, 3)
		assert.Equal(t, []string{"x-n1", "x-n2"}, got.Outbounds[0].Outbounds)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := executeCommand(t, "render",
			"--manifest", manifestPath, "--files", entry, "--cache", "none",
			"--output", "yaml", "--select", "")
		require.NoError(t, err)
		assert.Contains(t, out, "outbounds:\n  - type: selector\n    tag: g\n")
	})

	t.Run("hidden files directory", func(t *testing.T) {
		hidden := filepath.Join(filepath.Dir(entry), ".gist")
		require.NoError(t, os.Mkdir(hidden, 0o755))
		nodes, err := os.ReadFile(filepath.Join(entry, "nodes.json"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(hidden, "nodes.json"), nodes, 0o600))

		out, err := executeCommand(t, "render",
			"--manifest", manifestPath, "--files", hidden, "--cache", "none",
			"--output", "json", "--select", "$.outbounds[*].tag")
		require.NoError(t, err)
		assert.Equal(t, "g\nx-n1\nx-n2\n", out)
	})

	t.Run("files is not a directory", func(t *testing.T) {
		_, err := executeCommand(t, "render",
			"--manifest", manifestPath, "--files", manifestPath, "--cache", "none",
			"--output", "json", "--select", "")
		assert.ErrorContains(t, err, "is not a directory")
	})

	t.Run("missing local file", func(t *testing.T) {
		_, err := executeCommand(t, "render",
			"--manifest", manifestPath, "--files", t.TempDir(), "--cache", "none",
			"--output", "json", "--select", "")
		assert.Error(t, err)
	})

	t.Run("missing manifest", func(t *testing.T) {
		_, err := executeCommand(t, "render",
			"--manifest", filepath.Join(entry, "absent.json"), "--cache", "none",
			"--output", "json", "--select", "")
		assert.ErrorContains(t, err, "read manifest")
	})
}
