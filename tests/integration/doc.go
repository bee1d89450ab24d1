// Package integration provides integration tests that verify database and
// window-store state after requests. These tests use real PostgreSQL,
// MongoDB, and Redis instances via testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
