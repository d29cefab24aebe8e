package renderer

import (
	"github.com/conneroisu/boxrender/internal/errors"
	"github.com/conneroisu/boxrender/internal/manifest"
	"github.com/conneroisu/boxrender/internal/semver"
)

// SelectTemplate picks the template for a client version. The first rule
// whose predicates all hold for v wins; with no rules, an unknown version
// or no matching rule the first template is used.
func SelectTemplate(m *manifest.Manifest, v *semver.Version) (*manifest.TemplateConfig, error) {
	if len(m.Templates) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeNoTemplates, "no templates declared")
	}
	if v == nil {
		return m.Templates[0], nil
	}

	for _, rule := range m.TemplateRules {
		if rule == nil || !RuleMatches(rule, v) {
			continue
		}
		t := m.Template(rule.Tag)
		if t == nil {
			return nil, errors.ErrTemplateNotFound(rule.Tag)
		}
		return t, nil
	}

	return m.Templates[0], nil
}

// RuleMatches reports whether every predicate declared by rule holds for
// the client version v. A predicate value that does not parse fails the rule.
func RuleMatches(rule *manifest.TemplateRule, v *semver.Version) bool {
	checks := []struct {
		value string
		holds func(*semver.Version) bool
	}{
		{rule.VersionEq, v.Eq},
		{rule.VersionGt, v.Gt},
		{rule.VersionGte, v.Gte},
		{rule.VersionLte, v.Lte},
	}

	for _, c := range checks {
		if c.value == "" {
			continue
		}
		want, err := semver.Parse(c.value)
		if err != nil || !c.holds(want) {
			return false
		}
	}
	return true
}

// invalidRuleVersions returns an error for every predicate value of rule
// that does not parse
func invalidRuleVersions(rule *manifest.TemplateRule) []error {
	var errs []error
	for _, value := range []string{rule.VersionEq, rule.VersionGt, rule.VersionGte, rule.VersionLte} {
		if value == "" {
			continue
		}
		if _, err := semver.Parse(value); err != nil {
			errs = append(errs, errors.NewConfigError(errors.ErrCodeInvalidVersion, "unparseable rule version", err).
				WithTag(rule.Tag).
				WithContext("value", value))
		}
	}
	return errs
}
