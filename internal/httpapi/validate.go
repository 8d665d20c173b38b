package httpapi

import (
	"regexp"

	"github.com/shsh-labs/chatgw/internal/apperror"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{10,14}$`)

const (
	maxMessageLength = 4096
	maxBulkItems     = 50
)

func validatePhone(to string) error {
	if !phonePattern.MatchString(to) {
		return apperror.Validation("'to' must be a valid phone number")
	}
	return nil
}

func validateMessageText(text string) error {
	if len(text) > maxMessageLength {
		return apperror.Validation("'message' exceeds maximum length of 4096 characters")
	}
	return nil
}

func validateBulkSize(n int) error {
	if n == 0 {
		return apperror.Validation("'messages' must not be empty")
	}
	if n > maxBulkItems {
		return apperror.Validation("'messages' must not exceed 50 items")
	}
	return nil
}
