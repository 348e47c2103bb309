// Package http exposes the application services over a JSON HTTP API.
//
// Handlers translate requests into application parameter structs, delegate
// to the injected services, and render responses through a shared responder
// so that error payloads stay uniform across endpoints.
package http
