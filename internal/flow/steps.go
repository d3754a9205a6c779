package flow

import (
	"errors"
	"fmt"
	"strings"

	"kycflow/internal/domain"
)

// ErrUnknownStep is returned for step identifiers missing from the alias
// table. Identifiers are never guessed.
var ErrUnknownStep = errors.New("unknown step identifier")

// stepAliases maps every identifier spelling seen in flow configurations to a
// canonical step. Keys are lower case.
var stepAliases = map[string]domain.StepKind{
	"country_selection":      domain.StepCountrySelection,
	"country-selection":      domain.StepCountrySelection,
	"document_selection":     domain.StepDocumentSelection,
	"document-selection":     domain.StepDocumentSelection,
	"document_type":          domain.StepDocumentSelection,
	"document-type":          domain.StepDocumentSelection,
	"document_front":         domain.StepDocumentFront,
	"document-front":         domain.StepDocumentFront,
	"document_front_capture": domain.StepDocumentFront,
	"document-front-capture": domain.StepDocumentFront,
	"document_back":          domain.StepDocumentBack,
	"document-back":          domain.StepDocumentBack,
	"document_back_capture":  domain.StepDocumentBack,
	"document-back-capture":  domain.StepDocumentBack,
	"selfie":                 domain.StepSelfie,
	"selfie_capture":         domain.StepSelfie,
	"selfie-capture":         domain.StepSelfie,
	"mrz":                    domain.StepMRZ,
	"mrz_scan":               domain.StepMRZ,
	"mrz-scan":               domain.StepMRZ,
	"mrz_capture":            domain.StepMRZ,
	"mrz-capture":            domain.StepMRZ,
	"scanning":               domain.StepMRZ,
	"complete":               domain.StepComplete,
	"thank_you":              domain.StepComplete,
	"thank-you":              domain.StepComplete,
}

// ParseStep resolves one identifier through the alias table.
func ParseStep(id string) (domain.StepKind, error) {
	kind, ok := stepAliases[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
	return kind, nil
}

// ParseSteps resolves a configured step list into the flow order. Duplicates
// and a completion step before the end are rejected. The completion step is
// appended when missing. With MRZ enabled and no MRZ step listed, one is
// inserted after the last document capture.
func ParseSteps(ids []string, settings domain.FlowSettings) ([]domain.StepKind, error) {
	steps := make([]domain.StepKind, 0, len(ids)+2)
	seen := make(map[domain.StepKind]bool, len(ids))
	for i, id := range ids {
		kind, err := ParseStep(id)
		if err != nil {
			return nil, err
		}
		if seen[kind] {
			return nil, fmt.Errorf("step %s listed twice", kind)
		}
		if kind == domain.StepComplete && i != len(ids)-1 {
			return nil, fmt.Errorf("step %s must be last", kind)
		}
		seen[kind] = true
		steps = append(steps, kind)
	}

	if settings.EnableMRZ && !seen[domain.StepMRZ] {
		if at := lastDocumentIndex(steps); at >= 0 {
			steps = append(steps[:at+1], append([]domain.StepKind{domain.StepMRZ}, steps[at+1:]...)...)
		}
	}
	if !seen[domain.StepComplete] {
		steps = append(steps, domain.StepComplete)
	}
	if len(steps) == 1 {
		return nil, errors.New("flow has no steps before completion")
	}
	return steps, nil
}

func lastDocumentIndex(steps []domain.StepKind) int {
	at := -1
	for i, k := range steps {
		if k.IsDocument() {
			at = i
		}
	}
	return at
}
