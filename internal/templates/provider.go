package templates

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/documcp/api/internal/documents"
)

// ErrUnknownType is returned when no template exists for a document type.
var ErrUnknownType = errors.New("unknown document type")

// Provider renders a prompt for a document type. Implementations must be
// pure: same inputs, same prompt, no side effects.
type Provider interface {
	Render(docType documents.DocumentType, inputText, projectName string) (string, error)
	Params(docType documents.DocumentType) GenParams
}

// GenParams are the per-type generation knobs passed to the model. PRDs want
// structure over creativity, overviews the opposite.
type GenParams struct {
	MaxTokens   int
	Temperature float64
}

type promptData struct {
	InputText      string
	ProjectContext string
}

type entry struct {
	tmpl   *template.Template
	params GenParams
	// nameFmt formats the project name into the prompt; each document type
	// phrases it differently.
	nameFmt string
}

// Builtin is the compiled-in prompt set for the supported document types.
type Builtin struct {
	entries map[documents.DocumentType]entry
}

const prdPrompt = `You are a senior product manager. Create a comprehensive Product Requirements Document (PRD) {{.ProjectContext}}based on the following description.

Project Description:
{{.InputText}}

Create a well-structured PRD with the following sections:
1. Overview
2. Goals & Objectives
3. System Context
4. Functional Requirements
5. Non-Functional Requirements
6. Deployment
7. Extensibility
8. Risks & Mitigation

Use clear, professional language and include specific technical details where appropriate. Format the output as Markdown.

PRD:`

const whatIsThisPrompt = `You are a technical writer. Create an engaging "What is this" overview document {{.ProjectContext}}based on the following description.

Project Description:
{{.InputText}}

Create a compelling overview with the following sections:
1. Vision (what this project aims to achieve)
2. Core Value (why it matters, what problems it solves)
3. Key Features (main capabilities)
4. Target Users (who will use this)
5. Tech Snapshot (high-level technical overview)
6. Roadmap (future plans)
7. Success Metrics

Use an engaging, accessible tone while maintaining technical accuracy. Format the output as Markdown.

What is this:`

const readmePrompt = `You are a developer writing documentation. Create a comprehensive README.md {{.ProjectContext}}based on the following description.

Project Description:
{{.InputText}}

Create a helpful README with the following sections:
1. Project title and brief description
2. Features
3. Installation instructions
4. Usage examples
5. API documentation (if applicable)
6. Configuration
7. Development setup
8. Contributing guidelines
9. License

Use clear, developer-friendly language with practical examples. Format the output as Markdown.

README:`

// NewBuiltin compiles the built-in prompt templates.
func NewBuiltin() *Builtin {
	mustParse := func(name, text string) *template.Template {
		return template.Must(template.New(name).Parse(text))
	}
	return &Builtin{
		entries: map[documents.DocumentType]entry{
			documents.TypePRD: {
				tmpl:    mustParse("prd", prdPrompt),
				params:  GenParams{MaxTokens: 3000, Temperature: 0.3},
				nameFmt: "for project '%s' ",
			},
			documents.TypeWhatIsThis: {
				tmpl:    mustParse("what_is_this", whatIsThisPrompt),
				params:  GenParams{MaxTokens: 2500, Temperature: 0.7},
				nameFmt: "called '%s' ",
			},
			documents.TypeReadme: {
				tmpl:    mustParse("readme", readmePrompt),
				params:  GenParams{MaxTokens: 2000, Temperature: 0.5},
				nameFmt: "# %s\n\n",
			},
		},
	}
}

// Render produces the full prompt for a document type.
func (b *Builtin) Render(docType documents.DocumentType, inputText, projectName string) (string, error) {
	e, ok := b.entries[docType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, docType)
	}

	ctx := ""
	if projectName != "" {
		ctx = fmt.Sprintf(e.nameFmt, projectName)
	}

	var sb strings.Builder
	if err := e.tmpl.Execute(&sb, promptData{InputText: inputText, ProjectContext: ctx}); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", docType, err)
	}
	return sb.String(), nil
}

// Params returns the generation parameters for a document type, falling back
// to conservative defaults for types without an explicit entry.
func (b *Builtin) Params(docType documents.DocumentType) GenParams {
	if e, ok := b.entries[docType]; ok {
		return e.params
	}
	return GenParams{MaxTokens: 2048, Temperature: 0.7}
}
