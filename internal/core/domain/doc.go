// Package domain has the types every other kb package speaks: documents
// and their lifecycle, chunks, permission levels and scopes, sources and
// citations, conversations, settings and the sentinel errors callers match
// with errors.Is.
//
// It imports nothing outside the standard library.
package domain
