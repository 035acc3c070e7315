// Package retry wraps calls to unreliable external backends with a bounded,
// jitter-free exponential backoff. Failures are classified as timeouts, I/O
// failures or permanent errors; only the first two are retried.
package retry
