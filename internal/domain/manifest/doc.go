// Package manifest contains the record of packing decisions embedded in every
// archive.
//
// A Manifest lists included candidates (with entry name, size and BLAKE3
// digest) and skipped candidates (with a reason). Its encoded length is
// padded to a bound computed before any decision is made, which keeps the
// cost of the manifest entry constant for the whole run.
package manifest
