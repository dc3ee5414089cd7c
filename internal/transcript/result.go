// Package transcript decodes recognizer result bodies into printable text.
package transcript

import (
	"encoding/xml"
	"strings"
	"unicode/utf8"
)

// InvalidEncodingPlaceholder stands in for result bodies that are not UTF-8.
const InvalidEncodingPlaceholder = "the server sent a result that is not valid UTF-8"

// Interpretation is one NLSML interpretation of the caller's input.
type Interpretation struct {
	Grammar    string
	Confidence float64
	Instance   string
	Input      string
}

// Result is a decoded RECOGNITION-COMPLETE body.
type Result struct {
	// Raw is the body as text, or InvalidEncodingPlaceholder.
	Raw             string
	ValidUTF8       bool
	Interpretations []Interpretation
}

// Text returns the best printable transcript: the first interpretation's
// input, then its instance, then the raw body.
func (r Result) Text() string {
	for _, interp := range r.Interpretations {
		if text := clean(interp.Input); text != "" {
			return text
		}
		if text := clean(interp.Instance); text != "" {
			return text
		}
	}
	return strings.TrimSpace(r.Raw)
}

// Confidence returns the first interpretation's confidence and whether one exists.
func (r Result) Confidence() (float64, bool) {
	if len(r.Interpretations) == 0 {
		return 0, false
	}
	return r.Interpretations[0].Confidence, true
}

// Decode never fails: invalid UTF-8 yields the placeholder and non-NLSML
// bodies yield no interpretations.
func Decode(body []byte) Result {
	if !utf8.Valid(body) {
		return Result{Raw: InvalidEncodingPlaceholder}
	}
	result := Result{Raw: string(body), ValidUTF8: true}
	result.Interpretations = parseNLSML(body)
	return result
}

type nlsmlResult struct {
	XMLName         xml.Name              `xml:"result"`
	Grammar         string                `xml:"grammar,attr"`
	Interpretations []nlsmlInterpretation `xml:"interpretation"`
}

type nlsmlInterpretation struct {
	Grammar    string  `xml:"grammar,attr"`
	Confidence float64 `xml:"confidence,attr"`
	Instance   struct {
		Inner string `xml:",innerxml"`
	} `xml:"instance"`
	Input struct {
		Mode string `xml:"mode,attr"`
		Text string `xml:",chardata"`
	} `xml:"input"`
}

func parseNLSML(body []byte) []Interpretation {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "<") {
		return nil
	}

	var doc nlsmlResult
	if err := xml.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil
	}

	out := make([]Interpretation, 0, len(doc.Interpretations))
	for _, interp := range doc.Interpretations {
		grammar := interp.Grammar
		if grammar == "" {
			grammar = doc.Grammar
		}
		out = append(out, Interpretation{
			Grammar:    grammar,
			Confidence: interp.Confidence,
			Instance:   clean(stripTags(interp.Instance.Inner)),
			Input:      clean(interp.Input.Text),
		})
	}
	return out
}

// stripTags drops markup from structured instances so they print as text.
func stripTags(raw string) string {
	var b strings.Builder
	depth := 0
	for _, r := range raw {
		switch {
		case r == '<':
			depth++
			b.WriteRune(' ')
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// clean normalizes whitespace.
func clean(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
