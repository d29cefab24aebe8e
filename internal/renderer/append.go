package renderer

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/conneroisu/boxrender/internal/document"
	"github.com/conneroisu/boxrender/internal/errors"
	"github.com/conneroisu/boxrender/internal/filter"
	"github.com/conneroisu/boxrender/internal/manifest"
)

// Resources are the processed resource documents of a render, keyed by tag
// in manifest declaration order
type Resources = *orderedmap.OrderedMap[string, *document.Document]

func newResources(capacity int) Resources {
	return orderedmap.New[string, *document.Document](orderedmap.WithCapacity[string, *document.Document](capacity))
}

type compiledFilter struct {
	filter  filter.Set
	exclude filter.Set
}

type compiledDirective struct {
	tag string
	compiledFilter
}

// compileAppendDirectives compiles an outbound or endpoint block. A block
// holding the wildcard is reduced to the wildcard alone.
func compileAppendDirectives(d manifest.Directives) ([]compiledDirective, error) {
	if d == nil {
		return nil, nil
	}
	if f, ok := d.Get(manifest.Wildcard); ok {
		only := orderedmap.New[string, *manifest.Filter]()
		only.Set(manifest.Wildcard, f)
		return compileDirectives(only)
	}
	return compileDirectives(d)
}

func compileDirectives(d manifest.Directives) ([]compiledDirective, error) {
	if d == nil {
		return nil, nil
	}
	out := make([]compiledDirective, 0, d.Len())
	for pair := d.Oldest(); pair != nil; pair = pair.Next() {
		cd := compiledDirective{tag: pair.Key}
		if f := pair.Value; f != nil {
			var err error
			if cd.filter, err = filter.CompileAll(f.Filter); err != nil {
				return nil, err
			}
			if cd.exclude, err = filter.CompileAll(f.Exclude); err != nil {
				return nil, err
			}
		}
		out = append(out, cd)
	}
	return out, nil
}

// admits reports whether an entry with tag passes an append directive
func (f compiledFilter) admits(tag string) bool {
	return (f.filter == nil || f.filter.MatchesAll(tag)) && !f.exclude.MatchesAny(tag)
}

// groupAdmits is the group variant. Its exclude list keeps the tags that
// match instead of dropping them.
func (f compiledFilter) groupAdmits(tag string) bool {
	if f.filter != nil && !f.filter.MatchesAll(tag) {
		return false
	}
	if f.exclude != nil && !f.exclude.MatchesAny(tag) {
		return false
	}
	return true
}

// included tracks every entry appended to the template, once each, in the
// order it was first appended
type included struct {
	seen    map[*document.Entry]struct{}
	entries []*document.Entry
}

func (in *included) add(e *document.Entry) {
	if in.seen == nil {
		in.seen = make(map[*document.Entry]struct{})
	}
	if _, ok := in.seen[e]; ok {
		return
	}
	in.seen[e] = struct{}{}
	in.entries = append(in.entries, e)
}

// Apply runs the append engine over the template document: resource
// outbounds, then resource endpoints, then group membership.
func Apply(tmpl *document.Document, opts *manifest.TemplateOptions, resources Resources) error {
	if opts == nil {
		return nil
	}

	var outbounds, endpoints []compiledDirective
	var err error
	if opts.Append != nil {
		if outbounds, err = compileAppendDirectives(opts.Append.Outbounds); err != nil {
			return err
		}
		if endpoints, err = compileAppendDirectives(opts.Append.Endpoints); err != nil {
			return err
		}
	}
	groups, err := compileDirectives(opts.AppendGroups)
	if err != nil {
		return err
	}

	var in included
	pass := func(directives []compiledDirective, entriesOf func(*document.Document) []*document.Entry, appendTo *[]*document.Entry) error {
		for _, d := range directives {
			if d.tag == manifest.Wildcard {
				for pair := resources.Oldest(); pair != nil; pair = pair.Next() {
					appendEntries(entriesOf(pair.Value), d.compiledFilter, appendTo, &in)
				}
				continue
			}
			doc, ok := resources.Get(d.tag)
			if !ok {
				return errors.ErrResourceNotFound(d.tag)
			}
			appendEntries(entriesOf(doc), d.compiledFilter, appendTo, &in)
		}
		return nil
	}

	if err := pass(outbounds, func(d *document.Document) []*document.Entry { return d.Outbounds }, &tmpl.Outbounds); err != nil {
		return err
	}
	if err := pass(endpoints, func(d *document.Document) []*document.Entry { return d.Endpoints }, &tmpl.Endpoints); err != nil {
		return err
	}

	// Group keys are outbound tags of the output, the wildcard included
	for _, g := range groups {
		group := tmpl.Outbound(g.tag)
		if group == nil {
			return errors.ErrGroupNotFound(g.tag)
		}
		addMembers(group, g.compiledFilter, in.entries)
	}
	return nil
}

func appendEntries(entries []*document.Entry, f compiledFilter, appendTo *[]*document.Entry, in *included) {
	for _, e := range entries {
		if !f.admits(e.Tag()) {
			continue
		}
		*appendTo = append(*appendTo, e)
		in.add(e)
	}
}

func addMembers(group *document.Entry, f compiledFilter, entries []*document.Entry) {
	for _, e := range entries {
		if f.groupAdmits(e.Tag()) {
			group.AppendMember(e.Tag())
		}
	}
}
