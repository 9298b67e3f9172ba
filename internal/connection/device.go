// Package connection implements the relay's transport handles: one Device per
// WebSocket session, plus the manager tracking every live session.
package connection

// Device is one transport connection representing one client install. The
// registry and dispatcher only need identity and a non-blocking push; the
// concrete WebSocket type lives in this package too.
type Device interface {
	ID() string
	// Enqueue hands the frame to the device's write pump. It returns false
	// when the device is closed or its outbound buffer is full; either way
	// the frame is dropped for this one device only.
	Enqueue(data []byte) bool
}
