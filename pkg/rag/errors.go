package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationUnavailable wraps embedding or generation failures. The
	// request can be retried; stored facts are never affected.
	ErrGenerationUnavailable = errors.New("answer generation unavailable")
	// ErrNotConfigured means no AI provider is set up.
	ErrNotConfigured = errors.New("ai provider not configured")
	// ErrEmptyQuestion rejects blank questions before any work is done.
	ErrEmptyQuestion = errors.New("question is empty")
)

// NoDataResponse is the canned answer for a company without stored facts.
func NoDataResponse(company string) string {
	return fmt.Sprintf("I don't have any financial data for %s yet. Upload a balance sheet for this company and ask again.", company)
}
