// Package session binds callers to queue instances.
//
// A Manager owns the process-wide device state: the current Mode, the
// exclusive lock and the shared queue. Open returns a Handle bound according
// to the mode at that moment:
//
//   - Shared: the shared queue, any number of handles
//   - Exclusive: the shared queue, one handle at a time; Open never waits and
//     reports device.ErrBusy on contention
//   - PerHandle: a fresh private queue released when the handle closes
//
// Closing any handle clears the queue it is bound to. In shared mode that
// means one close wipes data queued by every other handle.
//
// The mode is read once per Open and the binding decided then is recorded on
// the Handle, so Close undoes exactly what Open did even if the mode has
// changed in between.
package session
