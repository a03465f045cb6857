// Package storage implements the client's two-tier credential store.
//
// The secure tier holds small secrets (device keys, credentials, tokens,
// the server public key) sealed with AES-GCM; the bulk tier holds large
// per-user payloads (receipt cache, wrapped keys, delete outbox). Each tier
// is a SQLite database with a single kv_store table managed by goose.
//
// Two layers are exposed:
//
//   - Repository: error-returning key/value access (SQLiteRepository,
//     SealedRepository, MemoryRepository).
//   - Store: the boundary the rest of the client uses. It never returns
//     errors; failures are logged and reported as absent / false.
package storage
