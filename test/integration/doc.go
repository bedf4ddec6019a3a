// Package integration contains integration tests that verify cross-package functionality.
// These tests ensure that feeds, middleware, the worker pool and metrics work together.
package integration
