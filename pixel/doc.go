/*
Package pixel provides types, constants and functions that have no other
dependencies and can be used by all packages within pixaccess.  This includes
the pixel type matrix, 5-d dimensions and addressing of pixel arrays, the
error kinds shared by the wire, session and access layers, sample decoding,
compression of stored planes, and logging.
*/
package pixel
