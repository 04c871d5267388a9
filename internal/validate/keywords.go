package validate

import (
	"regexp"
	"strings"
)

// Category is a scored group of keywords. A category counts once no matter
// how many of its keywords appear.
type Category struct {
	Name     string
	Points   int
	Keywords []string

	patterns []*regexp.Regexp
}

// NewCategory compiles a case-insensitive whole-word pattern for each keyword.
func NewCategory(name string, points int, keywords ...string) Category {
	c := Category{Name: name, Points: points, Keywords: keywords}
	for _, kw := range keywords {
		c.patterns = append(c.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(strings.ToLower(kw))+`\b`))
	}
	return c
}

// Match is the outcome of searching one text for one category.
type Match struct {
	Found         bool     `json:"found"`
	Count         int      `json:"count"`
	KeywordsFound []string `json:"keywords_found"`
}

// Match counts whole-word keyword occurrences in text.
func (c Category) Match(text string) Match {
	m := Match{KeywordsFound: []string{}}
	if text == "" {
		return m
	}
	for i, p := range c.patterns {
		n := len(p.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		m.Count += n
		m.KeywordsFound = append(m.KeywordsFound, c.Keywords[i])
	}
	m.Found = m.Count > 0
	return m
}

// Category names.
const (
	DifferentialDiagnosis = "differential_diagnosis"
	DiagnosticTesting     = "diagnostic_testing"
	ClinicalFeatures      = "clinical_features"
	DiagnosticCriteria    = "diagnostic_criteria"
	TreatmentGuidance     = "treatment_guidance"
)

// DefaultCategories are the clinical-content categories; their points sum to 100.
func DefaultCategories() []Category {
	return []Category{
		NewCategory(DifferentialDiagnosis, 30,
			"differential diagnosis", "differential", "ddx", "differential diagnostic",
			"alternative diagnoses", "diagnostic considerations", "diagnostic possibilities"),
		NewCategory(DiagnosticTesting, 25,
			"laboratory test", "diagnostic test", "laboratory diagnosis", "laboratory finding",
			"test result", "laboratory investigation", "diagnostic workup", "diagnostic evaluation",
			"sensitivity", "specificity"),
		NewCategory(ClinicalFeatures, 20,
			"clinical feature", "clinical presentation", "clinical manifestation", "signs and symptoms",
			"presenting symptom", "presenting sign", "clinical finding", "physical examination"),
		NewCategory(DiagnosticCriteria, 15,
			"diagnostic criteria", "diagnostic criterion", "case definition", "clinical criteria",
			"laboratory criteria"),
		NewCategory(TreatmentGuidance, 10,
			"treatment", "management", "therapy", "antimicrobial", "antibiotic", "antiviral", "antifungal"),
	}
}

// Score sums the points of every category found in text.
func Score(categories []Category, text string) (int, map[string]Match) {
	matches := make(map[string]Match, len(categories))
	score := 0
	for _, c := range categories {
		m := c.Match(text)
		matches[c.Name] = m
		if m.Found {
			score += c.Points
		}
	}
	return score, matches
}
