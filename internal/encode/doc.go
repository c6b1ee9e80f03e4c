// Package encode invokes the external ffmpeg/libopus encoder under a
// hard deadline. The Runner builds the fixed-flag invocation from
// resolved parameters, runs ffmpeg in its own process group so a kill
// reaps any children it spawned, and captures a bounded slice of its
// error stream as the failure diagnostic.
//
// A timeout is a distinct failure from a codec error: the process is
// killed before it can emit anything useful, so the Runner substitutes
// an explicit timeout message for the empty error stream.
package encode
