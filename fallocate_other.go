//go:build !linux && !darwin

package bufcodec

import "os"

// fallocateFile sizes an archive file before it is mapped for writing.
// On platforms without native fallocate, uses Truncate as a fallback.
// Note: This sets file size but may not reserve actual disk blocks on all filesystems.
func fallocateFile(file *os.File, size int64) error {
	return file.Truncate(size)
}
