// Package auth implements the AnyTLS authentication preamble: a SHA-256
// password hash followed by a zero-filled "padding-0" blob whose length
// itself rides the padding schedule, exchanged before the multiplexed
// Session begins.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"io"

	"github.com/anytls/anytls-go/pkg/errors"
	"github.com/anytls/anytls-go/pkg/padding"
)

// HashPassword returns SHA-256(password), the 32-byte value compared on
// both ends of the handshake. Deterministic across runs.
func HashPassword(password string) [32]byte {
	return sha256.Sum256([]byte(password))
}

// ClientHandshake writes the client preamble to conn: the password hash,
// a 2-byte big-endian padding-0 length, and that many zero bytes. The
// length is schedule(0)[0] from factory, clamped to [0, 65535], matching
// the padding scheme's own first packet so the preamble's size is
// indistinguishable from a normal padded write.
func ClientHandshake(w io.Writer, password string, factory *padding.Factory) error {
	hash := HashPassword(password)

	length := 0
	if factory != nil {
		if sizes := factory.GenerateRecordPayloadSizes(0); len(sizes) > 0 && sizes[0] > 0 {
			length = sizes[0]
		}
	}
	if length > 65535 {
		length = 65535
	}

	buf := make([]byte, 0, 32+2+length)
	buf = append(buf, hash[:]...)
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(length))
	buf = append(buf, lenBuf...)
	buf = append(buf, make([]byte, length)...)

	_, err := w.Write(buf)
	if err != nil {
		return errors.NewIOError("handshake write", err)
	}
	return nil
}

// ServerHandshake reads the client preamble from r and compares the
// password hash in constant time against expectedPassword. On mismatch it
// returns a KindAuthenticationFailed error and the caller must close the
// connection without responding.
func ServerHandshake(r io.Reader, expectedPassword string) error {
	hash := make([]byte, 32)
	if _, err := io.ReadFull(r, hash); err != nil {
		return errors.NewIOError("handshake read hash", err)
	}

	expected := HashPassword(expectedPassword)
	if subtle.ConstantTimeCompare(hash, expected[:]) != 1 {
		return errors.NewAuthenticationFailedError()
	}

	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return errors.NewIOError("handshake read padding0 length", err)
	}
	n := binary.BigEndian.Uint16(lenBuf)
	if n > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return errors.NewIOError("handshake discard padding0", err)
		}
	}
	return nil
}
