package cryptoutil

import (
	"io"

	"github.com/minio/sio"
)

// EncryptWriter returns a streaming encrypting writer using DARE (sio).
// Snapshot archives are piped through this when encryption is enabled.
func EncryptWriter(w io.Writer, key []byte) (io.WriteCloser, error) {
	return sio.EncryptWriter(w, sio.Config{Key: key})
}

// DecryptReader returns a streaming decrypting reader using DARE (sio).
func DecryptReader(r io.Reader, key []byte) (io.Reader, error) {
	return sio.DecryptReader(r, sio.Config{Key: key})
}
