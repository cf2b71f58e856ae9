// Package push maintains the MQTT-over-WebSocket connection used for device
// state notifications.
//
// The cloud issues short-lived, pre-signed WebSocket parameters (endpoint
// URI and client id) through its REST API; this package dials that endpoint
// and exposes topic subscription with panic-safe handlers. Callback fan-out
// policy lives with the caller; this package only builds topic names and
// moves messages.
package push
