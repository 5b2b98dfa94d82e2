// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package control carries the observability side-car of a selector: a
// thread-safe metrics registry the selector feeds once per round, and a
// probe registry external tools can dump for live state inspection.
package control
