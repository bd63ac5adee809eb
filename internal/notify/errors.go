package notify

import "fmt"

// ConfigurationError indicates the notifier configuration is incomplete or
// invalid. It is surfaced to the host for retry since the backing secrets
// may be fixed between deliveries.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// DispatchError indicates the email provider reported a failure to send
type DispatchError struct {
	Message string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("send failed: %s", e.Message)
}

// ClaimError indicates an infrastructure failure while attempting the
// receipt create, as opposed to losing the claim to an earlier delivery
type ClaimError struct {
	Err error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim failed: %v", e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}
