// Package client is the HTTP client for the auth API.
//
// APIClient keeps the access and refresh tokens issued at login and sends the
// access token as a bearer header. A 401 on an authenticated call triggers
// one refresh and one retry; if that fails the session is dropped.
//
// Transport failures wrap ErrUnavailable. Non-2xx answers come back as
// *APIError, which matches the common sentinels with errors.Is.
package client
