/*
Package pixaccess is a client library and reference server for pixel servers
that speak a form-based pixel protocol.  Pixel arrays are 5-d (X, Y, Z, C, T)
with a single sample type, created writable, filled by writes or by
conversions from uploaded files, then sealed into read-only, digest-identified
arrays.

Packages

	pixel     pixel types, dimensions, addresses, errors, logging and compression
	wire      HTTP multipart transport, payloads and token responses
	session   per-server protocol calls with local lifecycle checks and a read cache
	access    repository-aware facade: sessions, descriptors, uploads, statistics,
	          composites and thumbnails
	importer  manifest-driven import of raw and TIFF files
	config    TOML configuration for servers and clients
	storage   badger-backed pixel store used by the reference server
	server    reference pixel server

Commands

	pixd      runs the reference server
	pixctl    drives a pixel server from the command line
*/
package pixaccess
