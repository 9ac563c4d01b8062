package monitoring

import "log"

// Logf is for code that owns no Streams of its own, such as the HTTP response
// helpers and the command-line tools. Unlike Streams it is enabled by default.
var Logf = log.Printf

// SetLogger swaps Logf. A nil f mutes it.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		f = func(string, ...any) {}
	}
	Logf = f
}
