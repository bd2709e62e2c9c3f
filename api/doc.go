// Package api provides OpenAPI/Swagger documentation for the ClipForge API.
//
// This package contains the request and response types shared by the HTTP
// handlers, annotated for OpenAPI generation.
//
// # API Overview
//
// ClipForge provides a RESTful API for:
//   - Video upload and processing job submission
//   - Job status, cancellation, and progress streaming (WebSocket / SSE)
//   - Result download with short-lived signed tokens
//   - Processing history, aggregate statistics, and user preferences
//   - Health monitoring and metrics
//
// # Authentication
//
// When API keys are configured, protected endpoints require the X-API-Key
// header:
//
//	X-API-Key: your-api-key
//
// Health endpoints and the embedded web page are always exempt.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8501
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/clipforge/main.go -o api/docs
package api
