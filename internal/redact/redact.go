// Package redact replaces patient identifiers in free text with fixed
// placeholders before the text leaves the machine.
//
// Matching is pattern based and heuristic. It catches common UK forms of names
// after greeting or introduction cues, postcodes, street addresses, phone
// numbers, email addresses, NHS numbers and cue-anchored dates of birth. It is
// not a guarantee that a text is free of identifiers.
package redact

import (
	"regexp"
	"strings"
)

// Placeholders
const (
	Name      = "[NAME]"
	Postcode  = "[POSTCODE]"
	Address   = "[ADDRESS]"
	Phone     = "[PHONE]"
	Email     = "[EMAIL]"
	NHSNumber = "[NHS_NUMBER]"
	DOB       = "[DOB]"
)

type rule struct {
	placeholder string
	re          *regexp.Regexp
	// cue rules keep submatch 1 and replace only what follows it
	cue  bool
	skip func(target string) bool
}

// apply replaces every match of the rule and returns the count
func (r rule) apply(text string) (string, int) {
	matches := r.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}

	var sb strings.Builder
	last, n := 0, 0
	for _, m := range matches {
		start := m[0]
		if r.cue {
			start = m[3]
		}
		if r.skip != nil && r.skip(text[start:m[1]]) {
			continue
		}
		sb.WriteString(text[last:start])
		sb.WriteString(r.placeholder)
		last = m[1]
		n++
	}
	sb.WriteString(text[last:])
	return sb.String(), n
}

var titleWords = map[string]bool{
	"Mr": true, "Mrs": true, "Ms": true, "Miss": true, "Mx": true, "Dr": true, "Prof": true,
}

func isTitle(target string) bool {
	first, _, _ := strings.Cut(target, " ")
	return titleWords[strings.TrimSuffix(first, ".")]
}

const (
	months   = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*`
	dateForm = `(?:\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + months + `,?\s+\d{4})`
	titles   = `(?:Mr|Mrs|Ms|Miss|Mx|Dr|Prof)\.?[ ]+`
	nameWord = `[A-Z][a-z'-]+`
	suffixes = `(?:Street|St|Road|Rd|Avenue|Ave|Lane|Ln|Close|Drive|Way|Crescent|Court|Place|Gardens|Grove|Terrace|Hill|Row|Walk|Square)`
)

// Order matters: earlier rules consume digits later rules would misread.
var rules = []rule{
	{
		placeholder: Email,
		re:          regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	},
	{
		placeholder: DOB,
		re:          regexp.MustCompile(`(?i)(\b(?:date of birth|d\.?o\.?b\.?|born on|born)[ \t]*:?[ \t]*)` + dateForm),
		cue:         true,
	},
	{
		placeholder: NHSNumber,
		re:          regexp.MustCompile(`\b\d{3}[ -]?\d{3}[ -]?\d{4}\b`),
	},
	{
		placeholder: Phone,
		re:          regexp.MustCompile(`(?:\+44[ ]?(?:\(0\)[ ]?)?|\b0)\d{2,4}[ -]?\d{3,4}[ -]?\d{3,4}\b`),
	},
	{
		placeholder: Postcode,
		re:          regexp.MustCompile(`(?i)\b[A-Z]{1,2}\d[A-Z\d]?[ ]*\d[A-Z]{2}\b`),
	},
	{
		placeholder: Address,
		re:          regexp.MustCompile(`\b\d{1,4}[A-Za-z]?[ ]+(?:` + nameWord + `[ ]+){1,3}` + suffixes + `\b\.?`),
	},
	{
		placeholder: Name,
		re: regexp.MustCompile(`(\b(?i:dear|hello|hi|my name is|name is|this is|called|mr|mrs|ms|miss|mx)\.?[ ]+(?:` +
			titles + `)?)` + nameWord + `(?:[ ]` + nameWord + `)?`),
		cue:  true,
		skip: isTitle,
	},
	{
		placeholder: Name,
		re:          regexp.MustCompile(`(\b(?:Dr|Prof)\.?[ ]+)` + nameWord),
		cue:         true,
		skip:        isTitle,
	},
}

// Result is redacted text with the number of replacements per placeholder
type Result struct {
	Text   string         `json:"text"`
	Counts map[string]int `json:"counts"`
}

// Total returns the number of replacements made
func (r Result) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Redact returns text with identifiers replaced
func Redact(text string) string {
	return Apply(text).Text
}

// Apply redacts text and reports what was replaced
func Apply(text string) Result {
	counts := make(map[string]int)
	for _, r := range rules {
		var n int
		text, n = r.apply(text)
		if n > 0 {
			counts[r.placeholder] += n
		}
	}
	return Result{Text: text, Counts: counts}
}
