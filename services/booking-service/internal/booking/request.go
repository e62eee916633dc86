package booking

import (
	"regexp"
	"strings"
	"time"

	"github.com/projectbarber/barber/services/booking-service/internal/apperr"
	"github.com/projectbarber/barber/services/booking-service/internal/model"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	minPhoneDigits = 10
	maxPhoneDigits = 13
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
	nonDigits   = regexp.MustCompile(`\D+`)
)

// CreateRequest is a booking as submitted by a customer.
type CreateRequest struct {
	Name          string
	Phone         string
	ServiceID     string
	Date          string
	Time          string
	ProviderID    string
	PaymentMethod string
	Notes         string
}

// normalize trims every field, strips non-digits from the phone and validates
// formats. It does not touch the store.
func (r CreateRequest) normalize() (CreateRequest, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = NormalizePhone(r.Phone)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.ProviderID = strings.TrimSpace(r.ProviderID)
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	r.Notes = strings.TrimSpace(r.Notes)

	if r.Name == "" || r.Phone == "" || r.ServiceID == "" || r.Date == "" || r.Time == "" {
		return r, apperr.Validation("name, phone, serviceId, appointmentDate and appointmentTime are required")
	}
	if !ValidDate(r.Date) || !ValidTime(r.Time) {
		return r, apperr.Validation("Invalid date or time format. Use YYYY-MM-DD and HH:mm")
	}
	if n := len(r.Phone); n < minPhoneDigits || n > maxPhoneDigits {
		return r, apperr.Validation("Invalid phone number")
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = model.DefaultPaymentMethod
	}
	return r, nil
}

// NormalizePhone keeps digits only.
func NormalizePhone(raw string) string {
	return nonDigits.ReplaceAllString(raw, "")
}

// ValidDate accepts real calendar dates in YYYY-MM-DD.
func ValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidTime accepts 24h HH:MM.
func ValidTime(s string) bool {
	if !timePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}
