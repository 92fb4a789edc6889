// Package archive builds brotli-compressed tar streams whose length can be
// measured exactly while they are being written.
//
// A Stream feeds archive/tar into a streaming brotli encoder and flushes the
// encoder after every entry, so the buffered output always ends on a
// byte-aligned meta-block boundary. That property allows three operations the
// packer relies on:
//   - measuring the stream length after each entry,
//   - truncating the stream back to an earlier entry boundary,
//   - finishing the stream with raw (uncompressed) meta-blocks whose encoded
//     size is known before they are written.
package archive
