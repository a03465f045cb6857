// Package api is the REST client of the receipt service.
//
// Every endpoint lives under <base URL><prefix>/ (prefix defaults to
// /api/v1). Requests go through a Doer; resource calls are usually routed
// through the session manager so they carry auth and survive token expiry,
// while token endpoints use a plain *http.Client.
//
// Errors:
//   - non-2xx responses become *APIError carrying the status and the
//     service's {code, detail} body; errors.Is matches ErrUnauthorized,
//     ErrForbidden, ErrNotFound, ErrConflict and ErrRateLimited by status.
//   - transport failures wrap ErrUnavailable.
package api
