// Package manifest defines the render manifest: the resources a render may
// draw from, the templates it may produce, and the rules that pick a
// template for a client version.
package manifest

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/multierr"

	"github.com/conneroisu/boxrender/internal/errors"
)

// Source kinds
const (
	FromRemote = "remote"
	FromLocal  = "local"
	FromInline = "inline"
)

// Wildcard is the directive key that applies to every loaded resource
const Wildcard = "*"

// Manifest is the parsed config.json of a document store
type Manifest struct {
	Resources     []*ResourceConfig `json:"resources,omitempty"`
	Templates     []*TemplateConfig `json:"templates"`
	TemplateRules []*TemplateRule   `json:"template_rules,omitempty"`
}

// Source describes where a resource or template body comes from
type Source struct {
	Tag                string            `json:"tag"`
	From               string            `json:"from"`
	RemoteURL          string            `json:"remote_url,omitempty"`
	RemoteHeader       map[string]string `json:"remote_header,omitempty"`
	RemoteDisableCache bool              `json:"remote_disable_cache,omitempty"`
	LocalPath          string            `json:"local_path,omitempty"`
	Payload            json.RawMessage   `json:"payload,omitempty"`
}

// ResourceConfig declares a resource document
type ResourceConfig struct {
	Source
	Options *ResourceOptions `json:"options,omitempty"`
}

// ResourceOptions are applied to a resource right after it is loaded
type ResourceOptions struct {
	Filter      []string `json:"filter,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`
	FilterType  []string `json:"filter_type,omitempty"`
	ExcludeType []string `json:"exclude_type,omitempty"`
	TagPrefix   string   `json:"tag_prefix,omitempty"`
}

// TemplateConfig declares a template document
type TemplateConfig struct {
	Source
	Options *TemplateOptions `json:"options,omitempty"`
}

// TemplateOptions drive the append engine. Directive keys keep the order
// they were declared in.
type TemplateOptions struct {
	Append       *AppendOptions `json:"append,omitempty"`
	AppendGroups Directives     `json:"append_groups,omitempty"`
}

// AppendOptions lists the resources whose entries are appended to the
// template's outbounds and endpoints
type AppendOptions struct {
	Outbounds Directives `json:"outbounds,omitempty"`
	Endpoints Directives `json:"endpoints,omitempty"`
}

// Directives maps a resource or group tag to its filter. A nil filter
// admits everything.
type Directives = *orderedmap.OrderedMap[string, *Filter]

// Filter restricts the entries a directive admits
type Filter struct {
	Filter  []string `json:"filter,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// TemplateRule selects a template when every declared predicate holds for
// the client version.
//
// TODO: there is no strict less-than predicate; add version_lt once the
// manifest format owners agree on its name.
type TemplateRule struct {
	Tag        string `json:"tag"`
	VersionEq  string `json:"version_eq,omitempty"`
	VersionGt  string `json:"version_gt,omitempty"`
	VersionGte string `json:"version_gte,omitempty"`
	VersionLte string `json:"version_lte,omitempty"`
}

// Parse decodes and validates a manifest
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeManifestInvalid, "decode manifest", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate reports every structural problem of the manifest at once.
// Empty paths and URLs are left to render time.
func (m *Manifest) Validate() error {
	var errs error

	if len(m.Templates) == 0 {
		multierr.AppendInto(&errs, errors.NewValidationError(errors.ErrCodeNoTemplates, "no templates declared"))
	}
	for i, r := range m.Resources {
		if r == nil {
			multierr.AppendInto(&errs, fmt.Errorf("resources[%d]: null entry", i))
			continue
		}
		multierr.AppendInto(&errs, validateSource("resources", i, &r.Source))
	}
	for i, t := range m.Templates {
		if t == nil {
			multierr.AppendInto(&errs, fmt.Errorf("templates[%d]: null entry", i))
			continue
		}
		multierr.AppendInto(&errs, validateSource("templates", i, &t.Source))
	}
	for i, rule := range m.TemplateRules {
		if rule == nil || rule.Tag == "" {
			multierr.AppendInto(&errs, fmt.Errorf("template_rules[%d]: missing tag", i))
		}
	}

	if errs != nil {
		invalid := &errors.RenderError{
			Type:    errors.ErrorTypeValidation,
			Code:    errors.ErrCodeManifestInvalid,
			Message: "invalid manifest",
			Cause:   errs,
		}
		return invalid.WithContext("issues", len(multierr.Errors(errs)))
	}
	return nil
}

// Resource returns the first resource declared with tag
func (m *Manifest) Resource(tag string) *ResourceConfig {
	for _, r := range m.Resources {
		if r.Tag == tag {
			return r
		}
	}
	return nil
}

// Template returns the first template declared with tag
func (m *Manifest) Template(tag string) *TemplateConfig {
	for _, t := range m.Templates {
		if t.Tag == tag {
			return t
		}
	}
	return nil
}

func validateSource(section string, i int, s *Source) error {
	switch s.From {
	case FromRemote, FromLocal, FromInline:
		return nil
	default:
		return fmt.Errorf("%s[%d] %q: unknown source kind %q", section, i, s.Tag, s.From)
	}
}
