// Package client contains client-side building blocks for the journal.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic account contract (see the Client interface):
//     Register/GetSalt/Login, Refresh, Ping and Export.
//  2. A concrete gRPC implementation (see GRPCClient) that manages a
//     connection, injects an access token via unary and stream interceptors,
//     transparently refreshes expired tokens, and maps gRPC status codes to
//     sentinel errors. GRPCClient is also the sync engine's remote record
//     store: FetchAllForOwner, Save, SoftDelete and Subscribe.
//  3. Local persistence bootstrap utilities (InitDatabase, RunMigrations) for
//     the CLI, wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrLocalDataNotAvailable.
//
// # Concurrency & Contexts
//
// GRPCClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation/timeouts.
package client
