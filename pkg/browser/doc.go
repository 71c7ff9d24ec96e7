// Package browser drives one stateful page on behalf of a remote caller.
//
// A Manager owns at most one Session: a playwright driver, a browser, one
// browsing context and the current page. Callers discover the interactive
// elements of a page, receive positional identifiers for them (btn_2,
// input_3, table_1, h3_4) and use those identifiers in later requests to fill
// fields, click controls, follow headings and extract tables.
//
// Identifiers are bound to the snapshot that produced them. Any navigation
// observed by the session invalidates the snapshot, and identifiers from an
// invalidated snapshot fail with ErrStaleSnapshot instead of resolving to a
// different element.
//
// Most page operations are best-effort: timeouts and unreadable attributes are
// collected as Warnings on the result rather than returned as errors. Only
// identifier resolution, a missing session and a failed table extraction are
// reported to the caller as errors.
package browser
