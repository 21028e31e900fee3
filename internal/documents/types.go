package documents

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DocumentType identifies one of the supported output documents.
type DocumentType string

const (
	TypePRD        DocumentType = "prd"
	TypeWhatIsThis DocumentType = "what_is_this"
	TypeReadme     DocumentType = "readme"
)

// AllTypes lists every supported document type in canonical order.
func AllTypes() []DocumentType {
	return []DocumentType{TypePRD, TypeWhatIsThis, TypeReadme}
}

// Known reports whether t is a supported document type.
func Known(t DocumentType) bool {
	switch t {
	case TypePRD, TypeWhatIsThis, TypeReadme:
		return true
	}
	return false
}

// MaxInputLength caps the accepted project description size, in characters.
const MaxInputLength = 10000

// GenerationRequest is one accepted generation call. It is immutable once
// built by NewRequest; the orchestrator and its workers only read it.
type GenerationRequest struct {
	ID          uuid.UUID      `json:"id"`
	InputText   string         `json:"input_text"`
	ProjectName string         `json:"project_name,omitempty"`
	Types       []DocumentType `json:"document_types"`
	AcceptedAt  time.Time      `json:"accepted_at"`
}

// ValidationError rejects a request before any generation work starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// NewRequest validates the raw inputs and builds an immutable request.
// Duplicate types are collapsed keeping first-seen order. Any unknown type
// rejects the whole request; there is no partial dispatch.
func NewRequest(inputText, projectName string, types []DocumentType) (*GenerationRequest, error) {
	if strings.TrimSpace(inputText) == "" {
		return nil, &ValidationError{Field: "input_text", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(inputText) > MaxInputLength {
		return nil, &ValidationError{Field: "input_text", Message: fmt.Sprintf("too long (max %d characters)", MaxInputLength)}
	}
	if len(types) == 0 {
		return nil, &ValidationError{Field: "document_types", Message: "must request at least one type"}
	}

	seen := make(map[DocumentType]bool, len(types))
	distinct := make([]DocumentType, 0, len(types))
	for _, t := range types {
		if !Known(t) {
			return nil, &ValidationError{Field: "document_types", Message: fmt.Sprintf("unknown type %q", t)}
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		distinct = append(distinct, t)
	}

	return &GenerationRequest{
		ID:          uuid.New(),
		InputText:   inputText,
		ProjectName: projectName,
		Types:       distinct,
		AcceptedAt:  time.Now(),
	}, nil
}

// OutcomeStatus is the terminal state of a single document generation.
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	StatusFailed    OutcomeStatus = "failed"
	StatusTimedOut  OutcomeStatus = "timed_out"
)

// FailureReason classifies why a document was not generated.
type FailureReason string

const (
	ReasonTemplateError      FailureReason = "template_error"
	ReasonServiceUnavailable FailureReason = "service_unavailable"
	ReasonConnectionRefused  FailureReason = "connection_refused"
	ReasonModelUnavailable   FailureReason = "model_unavailable"
	ReasonInvalidResponse    FailureReason = "invalid_response"
	ReasonTimeout            FailureReason = "timeout"
)

// DocumentOutcome is the result of generating one document type.
// Content is set iff Status is succeeded; Reason iff it is not.
type DocumentOutcome struct {
	Type    DocumentType  `json:"document_type"`
	Status  OutcomeStatus `json:"status"`
	Content string        `json:"content,omitempty"`
	Reason  FailureReason `json:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns,omitempty"`
}

// OverallStatus aggregates the per-type outcome statuses.
type OverallStatus string

const (
	AllSucceeded   OverallStatus = "all_succeeded"
	PartialSuccess OverallStatus = "partial_success"
	AllFailed      OverallStatus = "all_failed"
)

// GenerationResult is the aggregate answer for one request. Outcomes are in
// request order and always one per distinct requested type.
type GenerationResult struct {
	RequestID uuid.UUID         `json:"request_id"`
	Outcomes  []DocumentOutcome `json:"outcomes"`
	Status    OverallStatus     `json:"status"`
	ModelID   string            `json:"model_id,omitempty"`
	Elapsed   time.Duration     `json:"elapsed_ns,omitempty"`
}

// ComputeOverall derives the aggregate status from the per-type outcomes.
func ComputeOverall(outcomes []DocumentOutcome) OverallStatus {
	succeeded := 0
	for _, o := range outcomes {
		if o.Status == StatusSucceeded {
			succeeded++
		}
	}
	switch succeeded {
	case len(outcomes):
		return AllSucceeded
	case 0:
		return AllFailed
	default:
		return PartialSuccess
	}
}
