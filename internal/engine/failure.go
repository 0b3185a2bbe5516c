package engine

import (
	"strings"

	"sentinel-core/internal/ledger"
	"sentinel-core/internal/risk"
)

var fundingPatterns = []string{"insufficient", "allowance", "balance", strings.ToLower(risk.FundingIssueMarker)}

// ClassifyFailure reports whether err is a funding problem (vault balance or
// executor allowance) rather than an execution failure. Typed ledger errors
// are checked first, then the message.
func ClassifyFailure(err error) bool {
	if err == nil {
		return false
	}
	if ledger.IsFundingError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fundingPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
