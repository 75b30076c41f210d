package generation

import "fmt"

// Template is the prompt configuration for one document type
type Template struct {
	System      string
	UserPrefix  string
	Temperature float64
	MaxTokens   int
}

const (
	summaryMaxTokens = 2000
	letterMaxTokens  = 3000
	defaultTemp      = 0.3
)

const dictationRules = `Convert the raw dictation into a properly formatted document.
Remove dictation commands such as "full stop", "comma", "new paragraph" and "delete that", applying them as punctuation or edits.
Use British English spelling. Keep medical terminology and abbreviations exactly as dictated.
Output only the document text, without preamble, markdown code blocks or ** markup.`

var templates = map[DocumentType]Template{
	ClinicalSummary: {
		System: `You are an expert UK GP writing structured clinical documentation for the medical record.
Sections in this order, with Title Case headings: Presenting Complaint, History of Presenting Complaint, Past Medical History, Medications, Allergies, Social History, Examination Findings, Assessment, Plan.
Use bullet points within sections and keep each section to a few lines. Omit sections that were not covered.
Do not include coding suggestions, QOF outcomes or administrative notes.
Use British English and format for direct paste into EMIS or SystmOne. Return only the summary.`,
		UserPrefix:  "Create a structured clinical summary from this GP consultation transcript:",
		Temperature: defaultTemp,
		MaxTokens:   summaryMaxTokens,
	},
	Referral: {
		System: `You are an expert UK GP writing a referral letter to secondary care.
Structure: date, recipient, patient details (name, DoB DD/MM/YYYY, NHS number, address if mentioned), reason for referral, background, clinical details, request, closing and sign-off.
Use plain text headers and British English. Return only the letter.`,
		UserPrefix:  "Create a referral letter from this consultation:",
		Temperature: defaultTemp,
		MaxTokens:   letterMaxTokens,
	},
	Patient: {
		System: `You are a UK GP writing a letter to a patient about their consultation.
Use plain English and explain any medical term you must use. Be warm and reassuring, in short paragraphs.
Cover what was discussed, findings, diagnosis, the plan, what happens next and when to seek help.
Return only the letter.`,
		UserPrefix:  "Create a patient-friendly letter from this consultation:",
		Temperature: defaultTemp,
		MaxTokens:   letterMaxTokens,
	},
	MeetingMinutes: {
		System: `You are a medical secretary writing healthcare meeting minutes.
Refer to people by initials only. Use plain text headings with a dashed underline and bullet points (•) for content.
Sections: Meeting Details, Agenda Items Discussed, Action Items, Decisions Made, Risks and Concerns, Next Meeting.
` + dictationRules,
		UserPrefix:  "Please format this dictated transcript into meeting minutes:",
		Temperature: defaultTemp,
		MaxTokens:   letterMaxTokens,
	},
	SickNote: {
		System: `You are a medical secretary formatting a sick note. Keep it brief: statement of unfitness, period of absence and medical reason.
` + dictationRules,
		UserPrefix:  "Please format this dictated transcript into a sick note:",
		Temperature: defaultTemp,
		MaxTokens:   letterMaxTokens,
	},
	ToWhom: {
		System: `You are a medical secretary formatting a "To Whom It May Concern" letter. Keep it formal and concise.
` + dictationRules,
		UserPrefix:  "Please format this dictated transcript into a professional letter:",
		Temperature: defaultTemp,
		MaxTokens:   letterMaxTokens,
	},
	FreeText: {
		System: `You are a medical secretary tidying free text. Clean up punctuation and grammar only; do not add letter structure.
` + dictationRules,
		UserPrefix:  "Please tidy this dictated transcript:",
		Temperature: defaultTemp,
		MaxTokens:   letterMaxTokens,
	},
	General: {
		System: `You are a medical secretary formatting general correspondence as a professional business letter.
` + dictationRules,
		UserPrefix:  "Please format this dictated transcript into a professional document:",
		Temperature: defaultTemp,
		MaxTokens:   letterMaxTokens,
	},
}

// TemplateFor returns the template of a document type
func TemplateFor(t DocumentType) (Template, bool) {
	tpl, ok := templates[t]
	return tpl, ok
}

// Prompt builds the completion for a source text
func (tpl Template) Prompt(sourceText string) Completion {
	return Completion{
		System:      tpl.System,
		User:        fmt.Sprintf("%s\n\n%s", tpl.UserPrefix, sourceText),
		Temperature: tpl.Temperature,
		MaxTokens:   tpl.MaxTokens,
	}
}
