package payment

import (
	"errors"
	"strings"

	"github.com/xueqianLu/contestpay/internal/config"
	"github.com/xueqianLu/contestpay/internal/wallet"
)

// Classifier decides how signing and submission errors are treated. Matching
// is a case-insensitive substring test against the error text.
type Classifier struct {
	alreadyProcessed []string
	staleAnchor      []string
}

// NewClassifier builds a classifier from marker lists. Nil lists fall back to
// the defaults, empty lists disable that class.
func NewClassifier(alreadyProcessed, staleAnchor []string) *Classifier {
	if alreadyProcessed == nil {
		alreadyProcessed = config.DefaultAlreadyProcessedMarkers
	}
	if staleAnchor == nil {
		staleAnchor = config.DefaultStaleAnchorMarkers
	}
	return &Classifier{
		alreadyProcessed: lower(alreadyProcessed),
		staleAnchor:      lower(staleAnchor),
	}
}

// AlreadyProcessed reports whether err means an equivalent transaction was
// already accepted, either by the ledger or by the local duplicate guard.
func (c *Classifier) AlreadyProcessed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, wallet.ErrDuplicateTransaction) {
		return true
	}
	return contains(err.Error(), c.alreadyProcessed)
}

// StaleAnchor reports whether err means the transaction's blockhash expired.
func (c *Classifier) StaleAnchor(err error) bool {
	if err == nil {
		return false
	}
	return contains(err.Error(), c.staleAnchor)
}

func contains(msg string, markers []string) bool {
	msg = strings.ToLower(msg)
	for _, m := range markers {
		if m != "" && strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
