// Package query builds E-utilities search expressions and loads named query
// sets from YAML.
package query

import (
	"fmt"
	"strings"
)

// Common field tags.
const (
	FieldTitleAbstract  = "Title/Abstract"
	FieldMeSHMajorTopic = "MeSH Major Topic"
	FieldMeSHTerms      = "MeSH Terms"
)

// Publication types used by the guideline collections.
var GuidelinePublicationTypes = []string{
	"Review",
	"Practice Guideline",
	"Guideline",
	"Meta-Analysis",
	"Systematic Review",
}

// Builder assembles a query from OR-groups joined by AND, followed by filters.
// A single group is emitted bare; several groups are each parenthesized.
type Builder struct {
	groups  []string
	filters []string
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Terms adds an OR-group of quoted terms, each tagged with field when set.
func (b *Builder) Terms(field string, terms ...string) *Builder {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, quote(t, field))
	}
	return b.group(parts)
}

// MeSHMajor adds an OR-group of MeSH major topics.
func (b *Builder) MeSHMajor(terms ...string) *Builder {
	return b.Terms(FieldMeSHMajorTopic, terms...)
}

// PublicationTypes adds an OR-group of [PT] tags.
func (b *Builder) PublicationTypes(types ...string) *Builder {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, t+"[PT]")
	}
	return b.group(parts)
}

// Raw adds a pre-formed expression as its own group.
func (b *Builder) Raw(expr string) *Builder {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return b
	}
	return b.group([]string{expr})
}

// FreeFullText restricts results to free full-text articles.
func (b *Builder) FreeFullText() *Builder {
	return b.filter("ffrft[filter]")
}

// Language restricts results to a publication language.
func (b *Builder) Language(lang string) *Builder {
	if lang = strings.TrimSpace(lang); lang == "" {
		return b
	}
	return b.filter(lang + "[Language]")
}

// Humans restricts results to human studies.
func (b *Builder) Humans() *Builder {
	return b.filter("Humans[MeSH Terms]")
}

// DateRange restricts results to publication years from..to inclusive.
func (b *Builder) DateRange(from, to int) *Builder {
	if from <= 0 || to <= 0 {
		return b
	}
	if from > to {
		from, to = to, from
	}
	return b.filter(fmt.Sprintf(`("%d"[PDAT] : "%d"[PDAT])`, from, to))
}

// Build renders the expression. It returns "" when nothing was added.
func (b *Builder) Build() string {
	var sb strings.Builder
	switch len(b.groups) {
	case 0:
	case 1:
		sb.WriteString(b.groups[0])
	default:
		for i, g := range b.groups {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString("(" + g + ")")
		}
	}
	for _, f := range b.filters {
		if sb.Len() > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(f)
	}
	return sb.String()
}

func (b *Builder) group(parts []string) *Builder {
	if len(parts) > 0 {
		b.groups = append(b.groups, strings.Join(parts, " OR "))
	}
	return b
}

func (b *Builder) filter(f string) *Builder {
	b.filters = append(b.filters, f)
	return b
}

func quote(term, field string) string {
	term = `"` + strings.ReplaceAll(term, `"`, "") + `"`
	if field == "" {
		return term
	}
	return term + "[" + field + "]"
}

// PilotTerms are the infectious-disease terms of the pilot collection.
var PilotTerms = []string{
	"infectious disease",
	"bacterial infection",
	"viral infection",
	"fungal infection",
	"parasitic infection",
	"sepsis",
	"pneumonia",
	"meningitis",
	"tuberculosis",
	"HIV",
	"hepatitis",
	"influenza",
}

// PilotQuery returns the broad infectious-disease query used for pilot runs.
func PilotQuery(openAccessOnly bool) string {
	b := NewBuilder().Terms("", PilotTerms...)
	if openAccessOnly {
		b.FreeFullText()
	}
	return b.DateRange(2014, 2025).Build()
}

// GuidelineQuery returns a MeSH-focused query restricted to diagnostic
// content in reviews and guidelines over the last yearsBack years.
func GuidelineQuery(meshTerm string, diagnosticTerms []string, currentYear, yearsBack int) string {
	return NewBuilder().
		MeSHMajor(meshTerm).
		Terms(FieldTitleAbstract, diagnosticTerms...).
		PublicationTypes(GuidelinePublicationTypes...).
		FreeFullText().
		Language("English").
		Humans().
		DateRange(currentYear-yearsBack, currentYear).
		Build()
}
