// Package session owns the user's bearer-token pair.
//
// The Manager injects Authorization headers (Bearer when an access token is
// held, Basic from the stored credentials otherwise), retries a request once
// after refreshing on 401, refreshes proactively on startup when the access
// token is about to expire, and publishes an auth-failed event when the
// session cannot be recovered.
//
// The token pair is persisted to the secure tier and mirrored to a fallback
// tier, so it survives the platform wiping the secure tier. At most one
// refresh call is in flight at any time.
package session
