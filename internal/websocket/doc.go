// Package websocket pushes edge-triggered access-change events to the
// host UI over a loopback websocket, replacing status polling.
package websocket
