package validation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"offers-function/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateCreateOffer sanitizes the request and checks that every field is present.
func ValidateCreateOffer(req models.CreateOfferRequest) (models.NewOffer, error) {
	offer := models.NewOffer{
		Title:        SanitizeString(req.Title),
		Description:  SanitizeString(req.Description),
		Reward:       SanitizeString(string(req.Reward)),
		TelegramLink: SanitizeString(req.TelegramLink),
	}

	fields := []struct {
		name  string
		value string
	}{
		{"title", offer.Title},
		{"description", offer.Description},
		{"reward", offer.Reward},
		{"telegram_link", offer.TelegramLink},
	}
	for _, f := range fields {
		if f.value == "" {
			return models.NewOffer{}, &ValidationError{
				Field:   f.name,
				Message: "is required",
			}
		}
	}

	return offer, nil
}

// ParseOfferID parses the id query parameter.
func ParseOfferID(raw string) (int64, error) {
	raw = SanitizeString(raw)
	if raw == "" {
		return 0, &ValidationError{
			Field:   "id",
			Message: "is required",
		}
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{
			Field:   "id",
			Message: "must be a positive integer",
		}
	}

	return id, nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
