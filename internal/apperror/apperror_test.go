package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("quest", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "NotFoundMessage wraps ErrNotFound",
			err:       NotFoundMessage("invalid token"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("invalid token"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "Expired wraps ErrExpired",
			err:       Expired("invite token"),
			target:    ErrExpired,
			wantMatch: true,
		},
		{
			name:      "Expired is not a validation error",
			err:       Expired("invite token"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "wrapped Forbidden still matches",
			err:       fmt.Errorf("service/quest: adding case: %w", Forbidden("no edit permission")),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("case", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("quest", "abc123"),
			wantMessage: "quest not found with id abc123",
		},
		{
			name:        "Expired names the resource",
			err:         Expired("invite token"),
			wantMessage: "invite token expired",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("institution", "unicamp"),
			wantMessage: "institution conflict with id unicamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := Unauthorized("missing credential")
	if unwrapped := err.Unwrap(); unwrapped != ErrUnauthorized {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrUnauthorized)
	}
}

func TestFieldIsRecorded(t *testing.T) {
	if err := ValidationFailed("case_id", "case_id is required"); err.Field != "case_id" {
		t.Errorf("Field = %q, want %q", err.Field, "case_id")
	}
	if err := Expired("viewer token"); err.Field != "token" {
		t.Errorf("Field = %q, want %q", err.Field, "token")
	}
}
