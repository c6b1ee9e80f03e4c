// Package textutil provides small text helpers shared across the
// encoder pipeline: filename sanitization for staged sources, bounded
// previews of tool output for error reporting, and display casing.
package textutil
