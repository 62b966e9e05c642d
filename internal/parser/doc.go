// Package parser extracts a declaration outline from Go source.
//
// The analyzer appends the outline to each .go file in a prompt so the
// model sees every top-level function, method and type even when a file
// is split into parts. Syntax errors are not fatal: whatever the partial
// AST yields is returned alongside the error text.
package parser
