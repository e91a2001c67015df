package notify

import (
	"errors"
	"strings"

	"firebase.google.com/go/v4/messaging"
)

// Category groups delivery errors for diagnostics. It never changes how a
// failure is handled.
type Category string

const (
	CategoryDisabled        Category = "disabled"
	CategoryThirdPartyAuth  Category = "third_party_auth"
	CategoryUnregistered    Category = "unregistered"
	CategoryInvalidArgument Category = "invalid_argument"
	CategorySenderMismatch  Category = "sender_mismatch"
	CategoryUnavailable     Category = "unavailable"
	CategoryUnknown         Category = "unknown"
)

var categoryMarkers = []struct {
	category Category
	markers  []string
}{
	{CategoryThirdPartyAuth, []string{"third-party-auth", "third_party_auth", "apns", "certificate", "web push"}},
	{CategoryUnregistered, []string{"registration-token-not-registered", "unregistered", "not registered"}},
	{CategoryInvalidArgument, []string{"invalid-argument", "invalid_argument", "invalid registration", "invalid-registration-token"}},
	{CategorySenderMismatch, []string{"mismatched-credential", "sender-id-mismatch", "senderid mismatch"}},
	{CategoryUnavailable, []string{"unavailable", "server-unavailable", "timeout"}},
}

// Classify maps a delivery error to a diagnostic category
func Classify(err error) Category {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSenderDisabled):
		return CategoryDisabled
	case messaging.IsThirdPartyAuthError(err):
		return CategoryThirdPartyAuth
	case messaging.IsUnregistered(err):
		return CategoryUnregistered
	case messaging.IsInvalidArgument(err):
		return CategoryInvalidArgument
	case messaging.IsSenderIDMismatch(err):
		return CategorySenderMismatch
	case messaging.IsUnavailable(err):
		return CategoryUnavailable
	}

	msg := strings.ToLower(err.Error())
	for _, c := range categoryMarkers {
		for _, marker := range c.markers {
			if strings.Contains(msg, marker) {
				return c.category
			}
		}
	}

	return CategoryUnknown
}

// Hint returns an operator hint for categories caused by misconfiguration
func (c Category) Hint() string {
	switch c {
	case CategoryThirdPartyAuth:
		return "APNs or web push credentials are missing or invalid in the Firebase project"
	case CategoryUnregistered:
		return "the device token is no longer registered and can be removed"
	case CategorySenderMismatch:
		return "the token belongs to a different Firebase project"
	case CategoryDisabled:
		return "set FIREBASE_SERVICE_ACCOUNT_KEY to enable push delivery"
	}
	return ""
}
