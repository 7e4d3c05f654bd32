// Package udprelay implements the server side of sing-box "udp-over-tcp
// v2" (Connect variant): an initial address header followed by
// length-prefixed datagrams multiplexed over an AnyTLS stream.
package udprelay

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/constants"
	"github.com/anytls/anytls-go/pkg/errors"
	"github.com/anytls/anytls-go/pkg/socksaddr"
)

// StreamReadWriter is the minimal surface udprelay needs from an AnyTLS
// stream: a blocking byte reader and a non-blocking enqueue for outgoing
// bytes (stream.Stream satisfies this via its Read/SendData methods).
type StreamReadWriter interface {
	io.Reader
	SendData([]byte) error
}

// Header is the initial-address record read once per UDP-relay stream.
type Header struct {
	IsConnect bool
	Addr      socksaddr.Addr
}

// ReadHeader decodes the initial header: isConnect(u8, must be 1)
// followed by a SOCKS5-style address record.
func ReadHeader(r io.Reader) (Header, error) {
	flag := make([]byte, 1)
	if _, err := io.ReadFull(r, flag); err != nil {
		return Header{}, errors.NewIOError("read udp header flag", err)
	}
	if flag[0] != 1 {
		return Header{}, errors.NewProtocolError("udp-over-tcp: isConnect must be 1")
	}
	addr, err := socksaddr.ReadFrom(r)
	if err != nil {
		return Header{}, err
	}
	return Header{IsConnect: true, Addr: addr}, nil
}

// WriteHeader encodes the initial header; the wire format is symmetric,
// so a client-side adapter can reuse it.
func WriteHeader(w io.Writer, addr socksaddr.Addr) error {
	buf := []byte{1}
	buf = append(buf, socksaddr.Encode(addr)...)
	_, err := w.Write(buf)
	return err
}

// ReadPacket reads one length-prefixed datagram: len(u16 BE) || payload.
// A zero length is a legal, empty packet.
func ReadPacket(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf)
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.NewIOError("read udp packet body", err)
	}
	return buf, nil
}

// EncodePacket frames payload as len(u16 BE) || payload. payload longer
// than constants.MaxUDPPacketSize is rejected: a u16 length cannot
// represent it, and silently truncating an oversize datagram would
// corrupt the flow.
func EncodePacket(payload []byte) ([]byte, error) {
	if len(payload) > constants.MaxUDPPacketSize {
		return nil, errors.NewProtocolError("udp packet exceeds 65535 bytes")
	}
	out := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(out[:2], uint16(len(payload)))
	copy(out[2:], payload)
	return out, nil
}

// Relay opens an unconnected UDP socket on an ephemeral local port, sends
// the stream's datagrams to target, and copies datagrams in both
// directions between the socket and stream, until ctx is cancelled or either side
// fails. The caller must have consumed the initial header already.
func Relay(ctx context.Context, stream StreamReadWriter, target *net.UDPAddr, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return errors.NewIOError("udp listen", err)
	}
	defer conn.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	var firstErr error
	var once sync.Once
	fail := func(err error) {
		once.Do(func() { firstErr = err })
	}

	// stream -> UDP
	go func() {
		defer wg.Done()
		for {
			payload, err := ReadPacket(stream)
			if err != nil {
				if err != io.EOF {
					fail(err)
				}
				conn.Close()
				return
			}
			if len(payload) == 0 {
				continue
			}
			if _, err := conn.WriteToUDP(payload, target); err != nil {
				logger.Debug("udp write failed", zap.Error(err))
			}
		}
	}()

	// UDP -> stream
	go func() {
		defer wg.Done()
		buf := make([]byte, constants.MaxUDPPacketSize)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			framed, err := EncodePacket(buf[:n])
			if err != nil {
				logger.Debug("dropping oversize udp datagram", zap.Int("size", n))
				continue
			}
			if err := stream.SendData(framed); err != nil {
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	wg.Wait()
	return firstErr
}
