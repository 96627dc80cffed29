// Package server implements the packetchat server: a single dispatch loop
// serving TCP sessions that speak the length-prefixed protocol, with an
// optional HTTP side-car for health, metrics and a WebSocket gateway.
//
// The code is split by concern: configuration, the registry, the readiness
// poller, the hub loop, routing, and the HTTP handlers.
package server
