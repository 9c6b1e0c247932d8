package storefront

import (
	"regexp"
	"strings"
)

var (
	postalCodeRegex = regexp.MustCompile(`^\d{4,6}$`)
	phoneRegex      = regexp.MustCompile(`^\d{7,15}$`)
)

// ValidateAddress checks a delivery address locally before it is
// attached to a finalize request. A failing address never reaches the
// network.
func ValidateAddress(addr Address) error {
	if strings.TrimSpace(addr.Line1) == "" {
		return NewValidationError("address line 1 is required")
	}
	if strings.TrimSpace(addr.City) == "" {
		return NewValidationError("city is required")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		return NewValidationError("postal code is required")
	}
	if strings.TrimSpace(addr.Phone) == "" {
		return NewValidationError("phone is required")
	}
	if !postalCodeRegex.MatchString(strings.TrimSpace(addr.PostalCode)) {
		return NewValidationError("enter a valid postal code")
	}
	phone := strings.ReplaceAll(addr.Phone, " ", "")
	if !phoneRegex.MatchString(phone) {
		return NewValidationError("enter a valid phone number")
	}
	if addr.AltPhone != "" {
		alt := strings.ReplaceAll(addr.AltPhone, " ", "")
		if !phoneRegex.MatchString(alt) {
			return NewValidationError("enter a valid alternate phone number")
		}
	}
	return nil
}
