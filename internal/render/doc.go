// Package render turns a button's renderer component into a key image and
// computes the content key under which that image is cached on a device.
//
// The cache key is a 128-bit BLAKE2b digest over the JCS (RFC 8785)
// canonical form of the renderer value plus the target image size, so two
// buttons that look the same share one uploaded image regardless of how
// their JSON was formatted.
package render
