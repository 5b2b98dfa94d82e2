// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package selector implements the multi-threaded fan-out readiness
// multiplexer. One Selector splits its registered channels into slices of
// at most MaxSelectableFDs descriptors, polls slice zero on the calling
// goroutine and every further slice on a helper worker, then merges the
// per-slice results into a single selected-key set. Externally it behaves
// like a single-threaded level-triggered selector: registration, interest
// updates, cancellation, wakeup and close all keep their usual contracts.
package selector
