package validate

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// Section is one titled body section of a PMC article.
type Section struct {
	Title string
	Text  string
}

// FullText is the searchable content of a PMC article.
type FullText struct {
	Sections []Section
	Abstract string
}

// Text joins every section and the abstract with single spaces.
func (f *FullText) Text() string {
	parts := make([]string, 0, len(f.Sections)+1)
	for _, s := range f.Sections {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	if f.Abstract != "" {
		parts = append(parts, f.Abstract)
	}
	return strings.Join(parts, " ")
}

// ParseFullText extracts paragraph text per <sec> and all text under
// <abstract>. Paragraphs belong to their innermost section; a section's title
// is its first <title> child.
func ParseFullText(data []byte) (*FullText, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	type secState struct {
		index   int
		inTitle bool
		text    []string
		title   []string
		depth   int
	}

	var (
		out       FullText
		stack     []string
		secs      []*secState
		abstract  []string
		absDepth  = -1
		paraDepth = -1
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			stack = append(stack, name)
			depth := len(stack)
			switch name {
			case "abstract":
				if absDepth < 0 {
					absDepth = depth
				}
			case "sec":
				out.Sections = append(out.Sections, Section{})
				secs = append(secs, &secState{index: len(out.Sections) - 1, depth: depth})
			case "title":
				if n := len(secs); n > 0 && secs[n-1].depth == depth-1 && len(secs[n-1].title) == 0 {
					secs[n-1].inTitle = true
				}
			case "p":
				if paraDepth < 0 {
					paraDepth = depth
				}
			}

		case xml.EndElement:
			depth := len(stack)
			if depth == 0 {
				continue
			}
			name := stack[depth-1]
			stack = stack[:depth-1]
			switch {
			case name == "abstract" && depth == absDepth:
				absDepth = -1
			case name == "p" && depth == paraDepth:
				paraDepth = -1
			case name == "title":
				if n := len(secs); n > 0 {
					secs[n-1].inTitle = false
				}
			case name == "sec" && len(secs) > 0 && secs[len(secs)-1].depth == depth:
				s := secs[len(secs)-1]
				secs = secs[:len(secs)-1]
				out.Sections[s.index] = Section{
					Title: strings.Join(s.title, " "),
					Text:  strings.Join(s.text, " "),
				}
			}

		case xml.CharData:
			text := strings.Join(strings.Fields(string(t)), " ")
			if text == "" {
				continue
			}
			if absDepth >= 0 {
				abstract = append(abstract, text)
				continue
			}
			n := len(secs)
			if n == 0 {
				continue
			}
			if secs[n-1].inTitle {
				secs[n-1].title = append(secs[n-1].title, text)
			} else if paraDepth >= 0 {
				secs[n-1].text = append(secs[n-1].text, text)
			}
		}
	}

	out.Abstract = strings.Join(abstract, " ")
	return &out, nil
}
