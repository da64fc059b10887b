// Package x11 implements [displayloop.Transport] over the X11 core protocol
// using xgb.
//
// Dial interns the atoms used for close requests and window titles, queries
// RandR for the primary refresh rate, and negotiates the Present and XFIXES
// extensions. Errors reported against the Present extension are surfaced as
// capability downgrades rather than failures.
package x11
