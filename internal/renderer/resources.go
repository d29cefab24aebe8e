package renderer

import (
	"bytes"
	"context"

	"github.com/conneroisu/boxrender/internal/document"
	"github.com/conneroisu/boxrender/internal/errors"
	"github.com/conneroisu/boxrender/internal/fetch"
	"github.com/conneroisu/boxrender/internal/filter"
	"github.com/conneroisu/boxrender/internal/manifest"
	"github.com/conneroisu/boxrender/internal/store"
)

// CollectResourceTags returns the resource tags a template needs, in first
// seen order. A wildcard in any directive selects every declared resource.
// Literal append keys must name declared resources; append_groups keys name
// groups and only select resources that happen to share their tag.
func CollectResourceTags(m *manifest.Manifest, opts *manifest.TemplateOptions) ([]string, error) {
	if opts == nil {
		return nil, nil
	}

	var tags []string
	seen := make(map[string]struct{})
	add := func(tag string) {
		if _, ok := seen[tag]; !ok {
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}

	loadAll := false
	if opts.Append != nil {
		for _, d := range []manifest.Directives{opts.Append.Outbounds, opts.Append.Endpoints} {
			if d == nil {
				continue
			}
			// Literal keys next to a wildcard are ignored by the append engine
			if _, ok := d.Get(manifest.Wildcard); ok {
				loadAll = true
				continue
			}
			for pair := d.Oldest(); pair != nil; pair = pair.Next() {
				if m.Resource(pair.Key) == nil {
					return nil, errors.ErrResourceNotFound(pair.Key)
				}
				add(pair.Key)
			}
		}
	}
	if opts.AppendGroups != nil {
		for pair := opts.AppendGroups.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Key == manifest.Wildcard {
				loadAll = true
				continue
			}
			if m.Resource(pair.Key) != nil {
				add(pair.Key)
			}
		}
	}

	if loadAll {
		tags = tags[:0]
		seen = make(map[string]struct{})
		for _, r := range m.Resources {
			add(r.Tag)
		}
	}
	return tags, nil
}

// SourceReport describes how one document of a render was obtained
type SourceReport struct {
	Tag     string        `json:"tag"`
	From    string        `json:"from"`
	Outcome fetch.Outcome `json:"outcome,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// load resolves a source to a document. Remote and local sources go
// through the gateway; inline payloads are decoded fresh on every call.
func (r *Renderer) load(ctx context.Context, src *manifest.Source, files store.Listing) (*document.Document, SourceReport, error) {
	report := SourceReport{Tag: src.Tag, From: src.From}

	var url string
	switch src.From {
	case manifest.FromInline:
		doc, err := parseInline(src)
		return doc, report, err
	case manifest.FromLocal:
		if src.LocalPath == "" {
			return nil, report, errors.ErrEmptyLocalPath(src.Tag)
		}
		f, ok := files[src.LocalPath]
		if !ok || f.RawURL == "" {
			return nil, report, errors.ErrLocalFileNotFound(src.Tag, src.LocalPath)
		}
		url = f.RawURL
	case manifest.FromRemote:
		if src.RemoteURL == "" {
			return nil, report, errors.ErrEmptyRemoteURL(src.Tag)
		}
		url = src.RemoteURL
	default:
		return nil, report, errors.NewConfigError(errors.ErrCodeManifestInvalid, "unknown source kind "+src.From, nil).WithTag(src.Tag)
	}

	res, err := r.gateway.Fetch(ctx, fetch.Request{
		Kind:         src.From,
		URL:          url,
		Header:       src.RemoteHeader,
		DisableCache: src.RemoteDisableCache,
		Validate: func(body []byte) error {
			_, err := document.Parse(body)
			return err
		},
	})
	if err != nil {
		return nil, report, err
	}

	report.Outcome = res.Outcome
	if res.Err != nil {
		report.Error = res.Err.Error()
	}

	doc, err := document.Parse(res.Body)
	if err != nil {
		// The gateway validated the body, so this only happens on a bug
		return nil, report, errors.NewInternalError(errors.ErrCodeInternalError, "parse fetched document", err).WithTag(src.Tag)
	}
	return doc, report, nil
}

func parseInline(src *manifest.Source) (*document.Document, error) {
	payload := bytes.TrimSpace(src.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return document.New(), nil
	}
	doc, err := document.Parse(payload)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeManifestInvalid, "invalid inline payload", err).WithTag(src.Tag)
	}
	return doc, nil
}

// processResource applies the resource options in their fixed order:
// filter, exclude, filter_type, exclude_type, then tag_prefix
func processResource(doc *document.Document, opts *manifest.ResourceOptions) error {
	if opts == nil {
		return nil
	}

	steps := []struct {
		patterns []string
		field    func(*document.Entry) string
		keep     bool
	}{
		{opts.Filter, (*document.Entry).Tag, true},
		{opts.Exclude, (*document.Entry).Tag, false},
		{opts.FilterType, (*document.Entry).Type, true},
		{opts.ExcludeType, (*document.Entry).Type, false},
	}

	for _, step := range steps {
		if step.patterns == nil {
			continue
		}
		set, err := filter.CompileAll(step.patterns)
		if err != nil {
			return err
		}
		pred := func(e *document.Entry) bool {
			if step.keep {
				return set.MatchesAll(step.field(e))
			}
			return !set.MatchesAny(step.field(e))
		}
		doc.Outbounds = keep(doc.Outbounds, pred)
		doc.Endpoints = keep(doc.Endpoints, pred)
	}

	if opts.TagPrefix != "" {
		for _, entries := range [][]*document.Entry{doc.Outbounds, doc.Endpoints} {
			for _, e := range entries {
				e.SetTag(opts.TagPrefix + e.Tag())
			}
		}
	}
	return nil
}

func keep(entries []*document.Entry, pred func(*document.Entry) bool) []*document.Entry {
	if entries == nil {
		return nil
	}
	out := make([]*document.Entry, 0, len(entries))
	for _, e := range entries {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}
