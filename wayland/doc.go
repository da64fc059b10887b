// Package wayland implements [displayloop.Transport] over the Wayland
// protocol using go-wayland.
//
// Each window is a bare wl_surface. Pointer and keyboard events name a
// surface only on enter and leave, so the transport tracks focus per seat
// device and addresses the events in between to the focused surface.
package wayland
