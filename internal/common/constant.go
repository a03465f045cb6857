// Package common contains shared constants, sentinel errors and small helpers
// used across FinanceKit client components.
package common

// AuthorizationHeaderName is the HTTP header carrying credentials on
// outbound requests.
const AuthorizationHeaderName = "Authorization"

// Authorization schemes understood by the receipt service.
const (
	SchemeBasic  = "Basic"
	SchemeBearer = "Bearer"
)

// Access scopes a device grant may carry.
const (
	ScopeReceiptIngest  = "receipt:ingest"
	ScopeReceiptDecrypt = "receipt:decrypt"
)
