// Package normalisers turns uploaded bytes into plain text. Each
// subpackage handles one family of MIME types; Registry picks the
// highest-priority normaliser for a document.
//
// Corrupt input is reported as domain.ErrParse. Empty extracted text is
// not an error.
package normalisers
