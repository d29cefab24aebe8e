// Package renderer turns a manifest into a single proxy configuration
// document.
//
// A render selects a template for the client version, loads the template
// and every resource it references concurrently, applies the per-resource
// filters and tag prefixes, and finally appends the resource entries and
// group members into the template. Fetch failures of individual sources are
// absorbed by the fetch gateway; everything else aborts the render with a
// structured error and no partial output.
package renderer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/boxrender/internal/document"
	"github.com/conneroisu/boxrender/internal/errors"
	"github.com/conneroisu/boxrender/internal/fetch"
	"github.com/conneroisu/boxrender/internal/logging"
	"github.com/conneroisu/boxrender/internal/manifest"
	"github.com/conneroisu/boxrender/internal/metrics"
	"github.com/conneroisu/boxrender/internal/semver"
	"github.com/conneroisu/boxrender/internal/store"
)

// Input is everything a single render needs
type Input struct {
	Manifest *manifest.Manifest
	// Version is the client version, nil when unknown
	Version *semver.Version
	// Files resolves local sources
	Files store.Listing
}

// Result is a rendered document along with how its sources were obtained
type Result struct {
	Document *document.Document
	Template string
	Sources  []SourceReport
}

// Renderer renders manifests. It is safe for concurrent use.
type Renderer struct {
	gateway *fetch.Gateway
	logger  logging.Logger
	metrics *metrics.Metrics
}

// New creates a renderer that loads documents through gateway
func New(gateway *fetch.Gateway, logger logging.Logger, m *metrics.Metrics) *Renderer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Renderer{
		gateway: gateway,
		logger:  logger.WithComponent("renderer"),
		metrics: m,
	}
}

// Wait blocks until the cache writes of finished renders are done
func (r *Renderer) Wait() {
	r.gateway.Wait()
}

// Render produces the output document for in
func (r *Renderer) Render(ctx context.Context, in Input) (*Result, error) {
	logger := logging.FromContext(ctx, r.logger)
	perf := logging.StartOperation(logger, "render")

	res, err := r.render(ctx, logger, in)

	result := metrics.ResultOK
	switch {
	case errors.IsCancelled(err):
		result = metrics.ResultCancelled
	case err != nil:
		result = metrics.ResultError
	}
	r.metrics.ObserveRender(result, perf.Elapsed())

	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}
	perf.End(ctx, "template", res.Template, "sources", len(res.Sources))
	return res, nil
}

func (r *Renderer) render(ctx context.Context, logger logging.Logger, in Input) (*Result, error) {
	if in.Manifest == nil {
		return nil, errors.NewValidationError(errors.ErrCodeManifestInvalid, "no manifest")
	}
	m := in.Manifest

	if in.Version != nil {
		for _, rule := range m.TemplateRules {
			if rule == nil {
				continue
			}
			for _, err := range invalidRuleVersions(rule) {
				logger.Warn(ctx, err, "Template rule will never match")
			}
		}
	}

	tmplConf, err := SelectTemplate(m, in.Version)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "Template selected", "template", tmplConf.Tag, "version", versionString(in.Version))

	tags, err := CollectResourceTags(m, tmplConf.Options)
	if err != nil {
		return nil, err
	}
	resConfs := declaredResources(m, tags)

	// Slot 0 is the template, the rest follow resConfs
	docs := make([]*document.Document, len(resConfs)+1)
	reports := make([]SourceReport, len(resConfs)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, report, err := r.load(gctx, &tmplConf.Source, in.Files)
		if err != nil {
			return err
		}
		docs[0], reports[0] = doc, report
		return nil
	})
	for i, rc := range resConfs {
		g.Go(func() error {
			doc, report, err := r.load(gctx, &rc.Source, in.Files)
			if err != nil {
				return err
			}
			if err := processResource(doc, rc.Options); err != nil {
				return err
			}
			docs[i+1], reports[i+1] = doc, report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if cerr := errors.FromContext(ctx.Err()); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}

	resources := newResources(len(resConfs))
	for i, rc := range resConfs {
		resources.Set(rc.Tag, docs[i+1])
	}

	out := docs[0]
	if err := Apply(out, tmplConf.Options, resources); err != nil {
		return nil, err
	}
	if opts := tmplConf.Options; opts != nil && opts.AppendGroups != nil {
		for pair := opts.AppendGroups.Oldest(); pair != nil; pair = pair.Next() {
			logger.Debug(ctx, "Group filled", "group", pair.Key, "members", len(out.Outbound(pair.Key).Members()))
		}
	}

	return &Result{
		Document: out,
		Template: tmplConf.Tag,
		Sources:  reports,
	}, nil
}

// declaredResources returns the first declaration of each tag, in manifest
// order
func declaredResources(m *manifest.Manifest, tags []string) []*manifest.ResourceConfig {
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}

	var out []*manifest.ResourceConfig
	for _, rc := range m.Resources {
		if rc == nil || !want[rc.Tag] {
			continue
		}
		want[rc.Tag] = false
		out = append(out, rc)
	}
	return out
}

func versionString(v *semver.Version) string {
	if v == nil {
		return "unknown"
	}
	return v.String()
}
