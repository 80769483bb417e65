// Package dedupe tracks recently observed message IDs so the ownership
// scan can skip messages it re-reads across cursor boundaries.
package dedupe
