// Package archive turns a directory into a single byte stream of known
// length and back.
//
// [Tar] writes a tar stream, optionally compressed, into a temporary spool
// file and returns it as a [Source] whose Size is exact. [Extract] reverses
// it, detecting the compression from the stream itself.
package archive
