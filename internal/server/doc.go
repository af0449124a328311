// Package server implements the HTTP server for the pullhook webhook receiver.
//
// This package provides:
//   - GitHub webhook endpoint handling with HMAC signature verification
//   - Per-IP rate limiting to prevent abuse
//   - Health and status endpoints for monitoring
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/app: Application configuration and validation
//   - internal/deploy: The pull-then-restart deploy saga
//   - internal/journal: SQLite-based run and step journal
//
// Security features:
//   - HMAC-SHA256 webhook signature verification (HMAC-SHA1 only as an
//     explicit per-app compatibility fallback)
//   - Content-Type validation (application/json only)
//   - Payload size limits (1MB max)
//   - Rate limiting (global and per-webhook)
//   - Per-app deploy locking (prevents concurrent deploys)
package server
