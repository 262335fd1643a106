// Package echo implements the network fixture used by the WebSocket and
// HTTP workloads.
//
// A Server exposes three routes on one listener:
//
//	GET  /noop    200 with an empty body
//	GET  /echo    WebSocket endpoint; every data message is echoed back whole
//	POST /upload  multipart upload; the file part is discarded and its size returned
//
// Fragmented WebSocket messages are reassembled before they are echoed, so a
// client always receives exactly one message per message it sent, with the
// same type. Close frames are answered with the same status code.
//
// Server satisfies fixture.Resource and can be started again after Stop.
package echo
