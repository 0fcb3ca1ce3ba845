/*
Package wire implements the pixel server's request/response protocol.

A request is a multipart form POST carrying a Method field, operation-specific
named fields and, for writes and uploads, exactly one binary part.  A response
is either the raw payload (pixel and file reads) or a text body of
"Key=v1,v2\r\nKey2=v3\r\n" tokens that is read against an explicit list of
expected steps.
*/
package wire
