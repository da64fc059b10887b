// Package displayloop provides a single-goroutine event loop for a
// connection to a display server, such as an X11 or Wayland compositor.
//
// # Architecture
//
// An [Application] owns a [Transport] (see the x11 and wayland packages)
// through a [Connection], a [Registry] of live windows, per-window [Timers],
// and idle queues. Each iteration of [Application.Run]:
//
//  1. computes the earliest timer deadline and the next idle cadence tick;
//  2. flushes the transport;
//  3. takes a buffered event, or blocks in poll(2) on the transport and the
//     wake descriptor;
//  4. drains and dispatches every available event;
//  5. fires due timers;
//  6. at the idle cadence, runs queued idle work;
//  7. returns once the application has finalized.
//
// # Thread Safety
//
// The transport, registry, windows and handlers are owned by the goroutine
// running the loop, which is locked to its OS thread. The only ways in from
// other goroutines are [IdleHandle], [AppIdleHandle] and [Application.Quit].
// Scheduling idle work into an empty queue writes to the wake descriptor
// (an eventfd on Linux, a self-pipe on Darwin) once; further scheduling
// before the next drain does not.
//
// # Shutdown
//
// [Application.Quit] asks the server to destroy every window and waits for
// each confirmation. Once the registry is empty the loop finalizes: the
// transport (including its helper window) and the wake descriptor are
// released exactly once. Destruction of the transport's helper window, or a
// fatal protocol error, also finalizes the loop.
//
// # Error Handling
//
// Handler errors and panics are logged per event and never stop the loop.
// Events addressed to unknown windows are dropped with a rate limited debug
// log. Only transport failures are fatal, reported as a [*FatalError].
package displayloop
