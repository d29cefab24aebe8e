package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/boxrender/internal/config"
	"github.com/conneroisu/boxrender/internal/manifest"
	"github.com/conneroisu/boxrender/internal/output"
	"github.com/conneroisu/boxrender/internal/renderer"
	"github.com/conneroisu/boxrender/internal/store"
	"github.com/conneroisu/boxrender/internal/useragent"
)

var (
	renderManifest  string
	renderFiles     string
	renderUserAgent string
	renderOutput    string
	renderSelect    string
	renderSources   bool
)

var renderCmd = &cobra.Command{
	Use:     "render",
	Aliases: []string{"r"},
	Short:   "Render a manifest once and print the result",
	Long: `Render a manifest from disk and print the resulting sing-box configuration.

Local sources are resolved against the directory given by --files. Remote
sources are downloaded and cached with the configured cache backend.

Examples:
  boxrender render --manifest ./gist/config.json --files ./gist
  boxrender render --manifest config.json --user-agent "sing-box/1.11.4"
  boxrender render --manifest config.json --output yaml
  boxrender render --manifest config.json --select '$.outbounds[*].tag'`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderManifest, "manifest", "m", "", "Manifest file to render")
	renderCmd.Flags().StringVarP(&renderFiles, "files", "f", "", "Directory holding local sources")
	renderCmd.Flags().StringVar(&renderUserAgent, "user-agent", "", "Client user agent used to pick a template")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", output.FormatJSON, "Output format (json, yaml)")
	renderCmd.Flags().StringVarP(&renderSelect, "select", "s", "", "JSONPath expression selecting part of the output")
	renderCmd.Flags().BoolVar(&renderSources, "sources", false, "Print how each source was obtained to stderr")
	renderCmd.Flags().String("cache", "", "Cache backend (memory, sqlite, none)")
	_ = renderCmd.MarkFlagRequired("manifest")

	_ = viper.BindPFlag("cache.backend", renderCmd.Flags().Lookup("cache"))
}

func runRender(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := os.ReadFile(renderManifest)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := renderOnce(ctx, cfg, m)
	if err != nil {
		return err
	}

	if renderSources {
		enc := json.NewEncoder(cmd.ErrOrStderr())
		for _, src := range res.Sources {
			if err := enc.Encode(src); err != nil {
				return err
			}
		}
	}

	body, err := json.Marshal(res.Document)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return output.Write(cmd.OutOrStdout(), body, renderOutput, renderSelect)
}

// renderOnce renders m with components built from cfg
func renderOnce(ctx context.Context, cfg *config.Config, m *manifest.Manifest) (*renderer.Result, error) {
	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	in := renderer.Input{
		Manifest: m,
		Version:  useragent.ParseSingBoxVersion(renderUserAgent),
	}

	r := a.renderer
	if renderFiles != "" {
		dir, err := store.NewDirStore(renderFiles, a.logger)
		if err != nil {
			return nil, fmt.Errorf("files: %w", err)
		}
		if in.Files, err = dir.RootFiles(); err != nil {
			return nil, fmt.Errorf("list %s: %w", renderFiles, err)
		}
		r = newRenderer(cfg, dir, a.cache, a.logger, a.metrics)
		defer r.Wait()
	}

	return r.Render(ctx, in)
}
