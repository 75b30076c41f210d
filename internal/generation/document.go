// Package generation turns transcript text into formatted clinical documents
// through a language model provider.
package generation

import (
	"fmt"
	"time"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
)

// DocumentType selects the document template
type DocumentType string

const (
	ClinicalSummary DocumentType = "clinical-summary"
	Referral        DocumentType = "referral"
	Patient         DocumentType = "patient"
	MeetingMinutes  DocumentType = "meeting-minutes"
	SickNote        DocumentType = "sick-note"
	ToWhom          DocumentType = "to-whom"
	FreeText        DocumentType = "free-text"
	General         DocumentType = "general"
)

// DocumentTypes returns every document type in display order
func DocumentTypes() []DocumentType {
	return []DocumentType{
		ClinicalSummary, Referral, Patient, MeetingMinutes,
		SickNote, ToWhom, FreeText, General,
	}
}

// ParseDocumentType validates a document type name.
// "clinical" and "summary" are accepted as aliases of the clinical summary.
func ParseDocumentType(s string) (DocumentType, error) {
	switch s {
	case "clinical", "summary":
		return ClinicalSummary, nil
	}
	for _, t := range DocumentTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", apperr.InvalidInput("type", fmt.Sprintf("unknown document type %q", s))
}

// Letter reports whether the type is a letter rather than a summary
func (t DocumentType) Letter() bool {
	return t != ClinicalSummary && t != FreeText && t != MeetingMinutes
}

// Derivable reports whether the type may be generated from a clinical summary
func (t DocumentType) Derivable() bool {
	return t == Referral || t == Patient
}

// Document is one generated document
type Document struct {
	Type      DocumentType `json:"type"`
	Text      string       `json:"text"`
	Provider  string       `json:"provider"`
	Model     string       `json:"model,omitempty"`
	Redacted  bool         `json:"redacted"`
	CreatedAt time.Time    `json:"created_at"`
}
