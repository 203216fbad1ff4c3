// Package api exposes provisioning, builds and publishes over HTTP, and
// streams task logs over WebSocket.
package api
