// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package syspoll owns the native side of the selector: the pollfd-layout
// array shared with the kernel readiness call, the platform select backends,
// and the wakeup-socket ABI. Everything above this package deals in
// operation bits; everything below deals in descriptors and event words.
package syspoll
