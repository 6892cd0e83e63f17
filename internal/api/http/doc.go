// Package http exposes the queue device over a gin router.
//
// Handles are addressed by ID in the path. Writes take the raw request body,
// reads stream raw bytes with the count in the X-Bytes-Read trailer. Closing
// an ID that is already gone succeeds with already_closed set. Errors
// are JSON bodies carrying a "code" from device.Code and, for data
// operations, the partial byte count that was committed before the failure.
//
// Routes:
//   - POST   /device/open
//   - DELETE /device/handles/:id
//   - POST   /device/handles/:id/write
//   - GET    /device/handles/:id/read?max=N
//   - POST   /device/control
//   - GET    /device/stats
package http
