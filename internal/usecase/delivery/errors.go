package delivery

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/resilience/retry"
)

var (
	// ErrNotificationSend marks every terminal delivery failure returned to a caller.
	ErrNotificationSend = errors.New("notification send failed")

	// ErrQueueFull is returned by Executor.Submit when no queue slot is free.
	ErrQueueFull = errors.New("delivery queue full")

	// ErrExecutorClosed is returned by Executor.Submit after Shutdown.
	ErrExecutorClosed = errors.New("delivery executor closed")

	errProviderTimeout = errors.New("provider call timed out")
)

// SendError describes a notification that ended FAILED.
// errors.Is matches both ErrNotificationSend and the underlying cause.
type SendError struct {
	NotificationID string
	Channel        entity.Channel
	Provider       entity.ProviderType
	Cause          error
}

func (e *SendError) Error() string {
	provider := string(e.Provider)
	if provider == "" {
		provider = "no provider"
	}
	return fmt.Sprintf("%s notification %s failed via %s: %v",
		strings.ToLower(string(e.Channel)), e.NotificationID, provider, e.Cause)
}

func (e *SendError) Unwrap() []error {
	return []error{ErrNotificationSend, e.Cause}
}

// invalidTokenMarkers are matched case-insensitively against the text of
// errors no provider classified, such as errors from third-party clients.
var invalidTokenMarkers = []string{
	"unregistered",
	"notregistered",
	"baddevicetoken",
	"invalid registration",
	"invalidregistration",
	"invalid device token",
}

// tokenRejection is implemented by provider errors that report a dead device token.
type tokenRejection interface {
	InvalidToken() bool
}

func isTypedInvalidToken(err error) bool {
	var tr tokenRejection
	return errors.As(err, &tr) && tr.InvalidToken()
}

// providerClassified reports errors whose meaning the provider already decided.
// Status responses and credential failures never mean a dead device token.
func providerClassified(err error) bool {
	var httpErr *retry.HTTPError
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &httpErr) || errors.As(err, &retrieveErr)
}

// IsInvalidToken reports whether err means the device token should no longer be used.
func IsInvalidToken(err error) bool {
	if err == nil {
		return false
	}
	if isTypedInvalidToken(err) {
		return true
	}
	if providerClassified(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range invalidTokenMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
