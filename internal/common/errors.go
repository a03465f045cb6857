package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// Cache errors.
	ErrNoActiveUser = errors.New("no active user")

	// Device provisioning errors.
	ErrDeviceNotProvisioned = errors.New("device keys not provisioned")
	ErrServerKeyMissing     = errors.New("server public key not available")
)
