package storage

import "errors"

var (
	// ErrProviderNotFound is returned when a provider is not found
	ErrProviderNotFound = errors.New("provider not found")

	// ErrModelNotFound is returned when a model is not found
	ErrModelNotFound = errors.New("model not found")

	// ErrAlertNotFound is returned when a cost alert is not found or already resolved
	ErrAlertNotFound = errors.New("cost alert not found")

	// ErrCredentialNotStored is returned when a provider has no stored API key
	ErrCredentialNotStored = errors.New("no stored credential")

	// ErrEncryptionNotConfigured is returned when stored credentials cannot be read or written
	ErrEncryptionNotConfigured = errors.New("credential encryption is not configured")

	// ErrUnsupportedDatabase is returned for database URLs with an unknown scheme
	ErrUnsupportedDatabase = errors.New("unsupported database url")
)
