// Package integration provides cross-package tests that drive an iteration
// through its phases with the gate engine, the phase machine, the task
// field writer and the session manager working on one project directory.
//
// Build tag: integration
// Run with: go test -tags integration ./internal/integration/...
package integration
