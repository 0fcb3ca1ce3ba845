/*
Package session binds one pixel server connection to address-based pixel I/O
and the write-once/read-many lifecycle of pixel arrays.

A Session serializes its calls: at most one request is in flight per session.
Arrays are Writable after Create and Sealed after Seal.  Writes and conversions
fail with pixel.ErrNotWritable once sealed; reads fail with pixel.ErrNotReadable
until sealed.  Seal may return a different id than the one given and callers
must adopt it.
*/
package session
