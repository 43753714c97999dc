package services

import (
	"embed"
	"strings"
	"text/template"

	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"
)

//go:embed templates/*.tmpl
var aiTemplatesFS embed.FS

// Template names as constants
const (
	TopicExtractionPromptTemplate = "topic_extraction_prompt.tmpl"
	QuestionSetPromptTemplate     = "question_set_prompt.tmpl"
	QuestionPromptTemplate        = "question_prompt.tmpl"
	EquivalencePromptTemplate     = "equivalence_prompt.tmpl"
	ExplanationPromptTemplate     = "explanation_prompt.tmpl"
)

// AITemplateData holds data for rendering AI prompt templates
type AITemplateData struct {
	// Topic extraction
	DocumentText string
	Focus        string

	// Question generation
	Topic           string
	Level           string
	Count           int
	Context         string // retrieved training material
	SchemaForPrompt string

	// Evaluation
	QuestionText  string
	UserAnswer    string
	CorrectAnswer string
}

// AITemplateManager manages AI prompt templates
type AITemplateManager struct {
	templates *template.Template
}

// NewAITemplateManager creates a new template manager
func NewAITemplateManager() (result0 *AITemplateManager, err error) {
	templates, err := template.New("").ParseFS(aiTemplatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}

	return &AITemplateManager{
		templates: templates,
	}, nil
}

// RenderTemplate renders a template with the given data. Surrounding whitespace is trimmed.
func (tm *AITemplateManager) RenderTemplate(templateName string, data AITemplateData) (result0 string, err error) {
	var buf strings.Builder
	if err = tm.templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to render %s: %w", templateName, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
