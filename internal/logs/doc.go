// Package logs reads the JSON run log written by internal/logging.
//
// Last returns the trailing lines with bounded memory, Follow polls for
// appended lines until its context ends, and Entry/Render turn a JSON record
// back into the console layout, optionally filtered to one run id.
package logs
