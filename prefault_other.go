//go:build !linux

package bufcodec

// prefaultRegion is a no-op on non-Linux platforms.
func prefaultRegion(data []byte) {}
