// Package cli provides the interactive FinanceKit command-line client.
//
// It sits on top of the client core and adds an interactive REPL, a
// background connectivity watcher that flushes the delete outbox when the
// service becomes reachable again, and a session watcher that asks the user
// to sign in again when the session cannot be refreshed.
//
// Key features:
//   - Login / SignUp / Logout, device provisioning (setup)
//   - Ingest receipt images with client-side key wrapping
//   - List / Show / Decrypt receipts, offline from the local cache
//   - Delete with undo, outbox flush
//   - Spending summary and category budgets
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
