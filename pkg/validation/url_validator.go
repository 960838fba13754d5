package validation

import (
	"net/url"
	"strings"

	apperrors "go-ultrasound-classifier/internal/errors"
)

// URLValidator guards the remote-scan endpoint. Schemes and hosts are
// compared case-insensitively; an empty host list allows any host.
type URLValidator struct {
	schemes map[string]struct{}
	hosts   map[string]struct{}
}

// NewURLValidator allows http and https on any host
func NewURLValidator() *URLValidator {
	return NewURLValidatorWithOptions([]string{"http", "https"}, nil)
}

// NewURLValidatorWithOptions restricts schemes and, when hosts is non-empty,
// hostnames (without port).
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	return &URLValidator{
		schemes: toSet(schemes),
		hosts:   toSet(hosts),
	}
}

// ValidateImageURL returns a validation AppError for unusable URLs
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("Invalid URL format", err)
	}

	if _, ok := v.schemes[strings.ToLower(parsedURL.Scheme)]; !ok {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Hostname() == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if parsedURL.User != nil {
		return apperrors.NewValidationError("URL must not embed credentials", nil)
	}

	if len(v.hosts) > 0 {
		if _, ok := v.hosts[strings.ToLower(parsedURL.Hostname())]; !ok {
			return apperrors.NewValidationError("URL host not allowed", nil)
		}
	}

	return nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}
