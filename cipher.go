package bufcodec

import "github.com/tamirms/bufcodec/internal/mix"

// Encrypt adds a keystream derived from key and salt to data, byte by byte
// modulo 256. It is obfuscation against casual editing, not cryptography.
func Encrypt(data []byte, key Key, salt uint64) {
	mix.NewKeystream(mix.Key(key), salt).Add(data)
}

// Decrypt undoes Encrypt with the same key and salt.
func Decrypt(data []byte, key Key, salt uint64) {
	mix.NewKeystream(mix.Key(key), salt).Sub(data)
}
