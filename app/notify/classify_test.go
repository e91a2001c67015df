package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		expected Category
	}{
		{nil, ""},
		{ErrSenderDisabled, CategoryDisabled},
		{fmt.Errorf("send: %w", ErrSenderDisabled), CategoryDisabled},
		{errors.New("Auth error from APNS or Web Push Service"), CategoryThirdPartyAuth},
		{errors.New("third-party-auth-error"), CategoryThirdPartyAuth},
		{errors.New("Requested entity was not found: registration-token-not-registered"), CategoryUnregistered},
		{errors.New("invalid-argument: The registration token is not a valid FCM registration token"), CategoryInvalidArgument},
		{errors.New("mismatched-credential"), CategorySenderMismatch},
		{errors.New("service unavailable"), CategoryUnavailable},
		{errors.New("something else"), CategoryUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.expected {
			t.Errorf("Classify(%v) = %q, expected %q", tt.err, got, tt.expected)
		}
	}
}

func TestCategoryHint(t *testing.T) {
	if CategoryThirdPartyAuth.Hint() == "" {
		t.Error("Expected a hint for third party auth errors")
	}
	if CategoryUnknown.Hint() != "" {
		t.Error("Expected no hint for unknown errors")
	}
}

func TestNoopSender(t *testing.T) {
	if _, err := (NoopSender{}).Send(context.Background(), Message{Token: "x"}); !errors.Is(err, ErrSenderDisabled) {
		t.Errorf("Expected ErrSenderDisabled, got %v", err)
	}
}
