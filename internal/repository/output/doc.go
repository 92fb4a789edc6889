// Package output persists finished archives.
//
// The FileRepository writes the archive to the destination path and removes
// whatever it created if the write fails, so an incomplete archive is never
// left behind looking valid.
package output
