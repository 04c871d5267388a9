package query

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/helixir/literature-collector/internal/domain"
)

// DefaultMaxResults applies when a query entry omits max_results.
const DefaultMaxResults = 100

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("query: register slug validation: %v", err))
	}
	return v
}

// TermGroup is one OR-group of tagged terms.
type TermGroup struct {
	Field  string   `yaml:"field"`
	Values []string `yaml:"values" validate:"min=1,dive,required"`
}

// BuilderSpec describes a query in structured form instead of a raw expression.
type BuilderSpec struct {
	MeSHMajor        []string    `yaml:"mesh_major"`
	Terms            []TermGroup `yaml:"terms" validate:"dive"`
	PublicationTypes []string    `yaml:"publication_types"`
	Raw              string      `yaml:"raw"`
	FreeFullText     bool        `yaml:"free_full_text"`
	Language         string      `yaml:"language"`
	Humans           bool        `yaml:"humans"`
	FromYear         int         `yaml:"from_year" validate:"omitempty,min=1800"`
	ToYear           int         `yaml:"to_year" validate:"omitempty,min=1800"`
	YearsBack        int         `yaml:"years_back" validate:"omitempty,min=1,max=200"`
}

// Build renders the spec. now anchors years_back and an open to_year.
func (s *BuilderSpec) Build(now time.Time) string {
	b := NewBuilder()
	if len(s.MeSHMajor) > 0 {
		b.MeSHMajor(s.MeSHMajor...)
	}
	for _, g := range s.Terms {
		b.Terms(g.Field, g.Values...)
	}
	if len(s.PublicationTypes) > 0 {
		b.PublicationTypes(s.PublicationTypes...)
	}
	b.Raw(s.Raw)
	if s.FreeFullText {
		b.FreeFullText()
	}
	b.Language(s.Language)
	if s.Humans {
		b.Humans()
	}

	to := s.ToYear
	if to == 0 {
		to = now.Year()
	}
	switch {
	case s.FromYear > 0:
		b.DateRange(s.FromYear, to)
	case s.YearsBack > 0:
		b.DateRange(to-s.YearsBack, to)
	}
	return b.Build()
}

type queryEntry struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Query       string       `yaml:"query"`
	Builder     *BuilderSpec `yaml:"builder"`
	MaxResults  int          `yaml:"max_results"`
}

type querySetFile struct {
	Queries []queryEntry `yaml:"queries"`
}

// LoadFile reads a YAML query set from path.
func LoadFile(path string) ([]domain.QueryDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query set: %w", err)
	}
	queries, err := Parse(data, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query set %s: %w", path, err)
	}
	return queries, nil
}

// Parse decodes and validates a YAML query set. Each entry supplies either a
// raw query or a builder spec; names must be unique.
func Parse(data []byte, now time.Time) ([]domain.QueryDescriptor, error) {
	var file querySetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Queries) == 0 {
		return nil, domain.NewValidationError("queries", "at least one query is required")
	}

	seen := make(map[string]bool, len(file.Queries))
	out := make([]domain.QueryDescriptor, 0, len(file.Queries))
	for i, e := range file.Queries {
		qd := domain.QueryDescriptor{
			Name:        strings.TrimSpace(e.Name),
			Description: e.Description,
			Query:       strings.TrimSpace(e.Query),
			MaxResults:  e.MaxResults,
		}
		if qd.MaxResults == 0 {
			qd.MaxResults = DefaultMaxResults
		}

		if e.Builder != nil {
			if qd.Query != "" {
				return nil, domain.NewValidationError(fmt.Sprintf("queries[%d]", i), "query and builder are mutually exclusive")
			}
			if err := validate.Struct(e.Builder); err != nil {
				return nil, validationError(fmt.Sprintf("queries[%d].builder", i), err)
			}
			qd.Query = e.Builder.Build(now)
		}

		if err := Validate(qd); err != nil {
			return nil, fmt.Errorf("queries[%d]: %w", i, err)
		}
		if seen[qd.Name] {
			return nil, domain.NewValidationError(fmt.Sprintf("queries[%d].name", i), "duplicate name "+qd.Name)
		}
		seen[qd.Name] = true
		out = append(out, qd)
	}
	return out, nil
}

// Validate checks a single descriptor.
func Validate(qd domain.QueryDescriptor) error {
	if err := validate.Struct(qd); err != nil {
		return validationError("query", err)
	}
	return nil
}

// validationError converts the first validator failure into a domain error.
func validationError(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(prefix+"."+fe.Field(), fmt.Sprintf("failed %q check", fe.Tag()))
	}
	return domain.NewValidationError(prefix, err.Error())
}

// Pilot returns the single-query set used by pilot runs.
func Pilot(maxResults int) []domain.QueryDescriptor {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return []domain.QueryDescriptor{{
		Name:        "pilot",
		Description: "Infectious disease pilot collection",
		Query:       PilotQuery(true),
		MaxResults:  maxResults,
	}}
}

// Single wraps an ad hoc query expression in a descriptor.
func Single(name, expr string, maxResults int) (domain.QueryDescriptor, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	qd := domain.QueryDescriptor{Name: name, Query: strings.TrimSpace(expr), MaxResults: maxResults}
	return qd, Validate(qd)
}
