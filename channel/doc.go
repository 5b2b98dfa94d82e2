// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package channel provides the interruptible-channel machinery shared by
// everything a selector can register: the Begin/End bracket around blocking
// I/O, asynchronous close, the explicit per-goroutine Interrupter that
// replaces a thread-interrupt facility, and the pipe channel pair used both
// as an application byte channel and as the selector's wakeup primitive.
package channel
