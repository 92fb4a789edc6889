// Package packer implements the greedy prefix-fit of candidate files into a
// brotli-compressed tar archive bounded by a byte budget.
//
// Candidates are considered strictly in input order. Each one is appended to
// the live archive stream and the encoder is flushed, so the stream length is
// an exact measurement. The manifest is written last with a length reserved
// up front, which makes the cost of finishing the archive a constant known
// before the first candidate is read. A candidate is kept only if the
// measured length plus that constant stays within the budget.
//
// A rejected candidate is cut off the stream. When more candidates follow,
// the encoder state is rebuilt from the files committed so far, re-read
// from disk and checked against their recorded digests.
package packer
