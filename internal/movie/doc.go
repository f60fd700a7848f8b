// Package movie holds the production data model (characters, scripts, scenes,
// shots, transitions, task handles) and the typed HTTP client for the backend
// `/movie` REST namespace plus the generic `/tasks/{id}` status endpoint.
//
// The Backend interface is split per stage so each workflow depends only on
// the endpoints it calls; Client satisfies all of them. Non-2xx responses
// become *APIError values carrying the user-facing message and a service
// taxonomy classification.
package movie
