// Package server implements the Atlas real-time messaging gateway: the
// WebSocket session registry (Hub), per-connection workers, the event
// dispatch table with per-event token authentication, and the REST endpoints
// that front the same store and verifier.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, event routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
