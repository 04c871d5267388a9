package dedup

import (
	"testing"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "John Smith",
			expected: "john smith",
		},
		{
			name:     "extra whitespace",
			input:    "  John   Smith  ",
			expected: "john smith",
		},
		{
			name:     "last comma first format",
			input:    "SMITH, John",
			expected: "john smith",
		},
		{
			name:     "apostrophe removed",
			input:    "O'Brien",
			expected: "obrien",
		},
		{
			name:     "periods removed",
			input:    "J. K. Rowling",
			expected: "j k rowling",
		},
		{
			name:     "hyphens removed",
			input:    "Mary-Jane Watson",
			expected: "maryjane watson",
		},
		{
			name:     "all caps last comma first",
			input:    "DOE, Jane",
			expected: "jane doe",
		},
		{
			name:     "already normalized",
			input:    "john smith",
			expected: "john smith",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "only whitespace",
			input:    "   ",
			expected: "",
		},
		{
			name:     "unicode accented characters preserved",
			input:    "Jose Garcia",
			expected: "jose garcia",
		},
		{
			name:     "last comma first with extra spaces",
			input:    "  Smith ,  John  ",
			expected: "john smith",
		},
		{
			name:     "pubmed last name with initials",
			input:    "Smith JA",
			expected: "j a smith",
		},
		{
			name:     "pubmed single initial",
			input:    "van der Berg K",
			expected: "k van der berg",
		},
		{
			name:     "all caps surname is not initials",
			input:    "JOHN SMITH",
			expected: "john smith",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeName(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNameSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{
			name:     "exact match",
			a:        "john smith",
			b:        "john smith",
			expected: 1.0,
		},
		{
			name:     "same last same first",
			a:        "john smith",
			b:        "john smith",
			expected: 1.0,
		},
		{
			name:     "same last initial match",
			a:        "j smith",
			b:        "john smith",
			expected: 0.9,
		},
		{
			name:     "same last initial match reversed",
			a:        "john smith",
			b:        "j smith",
			expected: 0.9,
		},
		{
			name:     "same last only last available",
			a:        "smith",
			b:        "smith",
			expected: 0.7,
		},
		{
			name:     "same last different first",
			a:        "john smith",
			b:        "jane smith",
			expected: 0.3,
		},
		{
			name:     "completely different",
			a:        "john smith",
			b:        "alice johnson",
			expected: 0.0,
		},
		{
			name:     "empty strings",
			a:        "",
			b:        "",
			expected: 0.0,
		},
		{
			name:     "one empty",
			a:        "john smith",
			b:        "",
			expected: 0.0,
		},
		{
			name:     "single initial vs full first name same last",
			a:        "j smith",
			b:        "john smith",
			expected: 0.9,
		},
		{
			name:     "one has only last name other has full name same last",
			a:        "smith",
			b:        "john smith",
			expected: 0.7,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := nameSimilarity(tt.a, tt.b)
			if got != tt.expected {
				t.Errorf("nameSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestAuthorOverlap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		a       []string
		b       []string
		wantMin float64
		wantMax float64
	}{
		{
			name:    "both empty",
			a:       nil,
			b:       nil,
			wantMin: 0.0,
			wantMax: 0.0,
		},
		{
			name:    "first empty",
			a:       nil,
			b:       []string{"John Smith"},
			wantMin: 0.0,
			wantMax: 0.0,
		},
		{
			name:    "second empty",
			a:       []string{"John Smith"},
			b:       nil,
			wantMin: 0.0,
			wantMax: 0.0,
		},
		{
			name:    "exact match single author",
			a:       []string{"John Smith"},
			b:       []string{"John Smith"},
			wantMin: 1.0,
			wantMax: 1.0,
		},
		{
			name: "exact match multiple authors",
			a: []string{
				"John Smith",
				"Jane Doe",
			},
			b: []string{
				"John Smith",
				"Jane Doe",
			},
			wantMin: 1.0,
			wantMax: 1.0,
		},
		{
			name: "exact match different order",
			a: []string{
				"Jane Doe",
				"John Smith",
			},
			b: []string{
				"John Smith",
				"Jane Doe",
			},
			wantMin: 1.0,
			wantMax: 1.0,
		},
		{
			name: "no overlap completely different",
			a: []string{
				"John Smith",
			},
			b: []string{
				"Alice Johnson",
			},
			wantMin: 0.0,
			wantMax: 0.0,
		},
		{
			name: "partial match with abbreviation",
			a: []string{
				"J. Smith",
				"Jane Doe",
			},
			b: []string{
				"John Smith",
				"Jane Doe",
			},
			wantMin: 0.5,
			wantMax: 1.0,
		},
		{
			name: "superset overlap 3 vs 2 shared",
			a: []string{
				"John Smith",
				"Jane Doe",
				"Alice Johnson",
			},
			b: []string{
				"John Smith",
				"Jane Doe",
			},
			wantMin: 0.6,
			wantMax: 1.0,
		},
		{
			name: "last comma first format match",
			a: []string{
				"Smith, John",
			},
			b: []string{
				"John Smith",
			},
			wantMin: 1.0,
			wantMax: 1.0,
		},
		{
			name: "case insensitive match",
			a: []string{
				"JOHN SMITH",
			},
			b: []string{
				"john smith",
			},
			wantMin: 1.0,
			wantMax: 1.0,
		},
		{
			name: "no overlap multiple authors",
			a: []string{
				"John Smith",
				"Jane Doe",
			},
			b: []string{
				"Alice Johnson",
				"Bob Williams",
			},
			wantMin: 0.0,
			wantMax: 0.0,
		},
		{
			name:    "pubmed initials against full first name",
			a:       []string{"Smith J", "Doe JA"},
			b:       []string{"John Smith", "Jane Doe"},
			wantMin: 0.9,
			wantMax: 0.9,
		},
		{
			name: "one shared one different",
			a: []string{
				"John Smith",
				"Jane Doe",
			},
			b: []string{
				"John Smith",
				"Alice Johnson",
			},
			wantMin: 0.3,
			wantMax: 0.6,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := AuthorOverlap(tt.a, tt.b)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("AuthorOverlap() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestAuthorOverlap_Symmetry(t *testing.T) {
	t.Parallel()

	a := []string{
		"John Smith",
		"Jane Doe",
		"Alice Johnson",
	}
	b := []string{
		"John Smith",
		"Jane Doe",
	}

	ab := AuthorOverlap(a, b)
	ba := AuthorOverlap(b, a)

	if ab != ba {
		t.Errorf("AuthorOverlap is not symmetric: (%v, %v) = %v, (%v, %v) = %v",
			a, b, ab, b, a, ba)
	}
}

func TestNormalizeNames(t *testing.T) {
	t.Parallel()

	names := []string{
		"SMITH, John",
		"J. Doe",
		"Alice O'Brien",
	}

	got := normalizeNames(names)
	expected := []string{
		"john smith",
		"j doe",
		"alice obrien",
	}

	if len(got) != len(expected) {
		t.Fatalf("normalizeNames() returned %d items, want %d", len(got), len(expected))
	}

	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("normalizeNames()[%d] = %q, want %q", i, got[i], expected[i])
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"Sepsis: A Review.", "sepsis a review"},
		{"  Sepsis -- a   review ", "sepsis a review"},
		{"COVID-19 in 2020", "covid 19 in 2020"},
		{"", ""},
		{"...", ""},
	}

	for _, tt := range tests {
		if got := NormalizeTitle(tt.input); got != tt.expected {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
