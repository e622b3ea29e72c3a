// Package immich implements the HTTP client for an Immich-compatible asset
// store: multipart asset upload with outcome classification and the batched
// bulk-upload-check endpoint. One client serves every account; the API key
// is passed per call.
package immich
