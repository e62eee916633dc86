package payments

import (
	"strings"

	"github.com/projectbarber/barber/services/booking-service/internal/model"
)

var statusAliases = map[string]model.PaymentStatus{
	"paid":      model.PaymentPaid,
	"approved":  model.PaymentPaid,
	"succeeded": model.PaymentPaid,
	"success":   model.PaymentPaid,

	"pending":    model.PaymentPending,
	"in_process": model.PaymentPending,
	"waiting":    model.PaymentPending,

	"failed":   model.PaymentFailed,
	"rejected": model.PaymentFailed,
	"error":    model.PaymentFailed,

	"cancelled": model.PaymentCancelled,
	"canceled":  model.PaymentCancelled,
	"voided":    model.PaymentCancelled,
}

// NormalizeStatus maps a provider's status vocabulary onto PaymentStatus.
// Matching ignores case and surrounding whitespace.
func NormalizeStatus(raw string) (model.PaymentStatus, bool) {
	s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}
