package providers

import "fmt"

// ConfigurationError is returned when the requested provider or model is
// missing or disabled. No request is sent.
type ConfigurationError struct {
	Provider string
	Model    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Model != "":
		return fmt.Sprintf("provider %q model %q: %s", e.Provider, e.Model, e.Reason)
	case e.Provider != "":
		return fmt.Sprintf("provider %q: %s", e.Provider, e.Reason)
	}
	return e.Reason
}

// CredentialError is returned when neither the store nor the environment holds a key.
type CredentialError struct {
	Provider string
	EnvVar   string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("no credential for provider %q (stored key or %s)", e.Provider, e.EnvVar)
}

// TransportError wraps network failures and timeouts talking to a provider.
type TransportError struct {
	Provider string
	Model    string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %q transport failure: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-success reply from a provider. Message carries the
// provider's own error message unchanged.
type UpstreamError struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %q returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}
