// Package transport wraps a connectionless datagram socket: send-to-address
// and receive-from-address, with no stream semantics (spec.md §4.1/§6).
package transport

import (
	"fmt"
	"net"
)

// MaxDatagramSize is the largest datagram the protocol assumes; no message
// exceeds this (spec.md §4.3).
const MaxDatagramSize = 1024

// BroadcastAddress is the destination used in local-broadcast addressing
// mode (spec.md §6).
const BroadcastAddress = "255.255.255.255"

// Socket is the minimal datagram transport the reliable channel and
// receive loop are built on.
type Socket struct {
	conn net.PacketConn
}

// Listen opens a UDP socket bound to addr ("host:port", or ":port" to bind
// all interfaces). When broadcast is true, SO_BROADCAST is enabled so the
// socket may send to 255.255.255.255 (spec.md §6 local-broadcast mode).
func Listen(addr string, broadcast bool) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	if broadcast {
		if err := enableBroadcast(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: enable broadcast: %w", err)
		}
	}
	return &Socket{conn: conn}, nil
}

// SendTo writes a datagram to the given remote address.
func (s *Socket) SendTo(b []byte, addr net.Addr) error {
	_, err := s.conn.WriteTo(b, addr)
	return err
}

// ResolveAddr parses a "host:port" string into a net.Addr suitable for
// SendTo/ReceiveFrom.
func ResolveAddr(addr string) (net.Addr, error) {
	return net.ResolveUDPAddr("udp4", addr)
}

// ReceiveFrom blocks until a datagram arrives or the socket is closed
// (spec.md §5: "A receive blocks indefinitely on the socket until a
// datagram arrives or the socket is closed").
func (s *Socket) ReceiveFrom() ([]byte, net.Addr, error) {
	buf := make([]byte, MaxDatagramSize)
	n, addr, err := s.conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close shuts the socket down; any blocked ReceiveFrom returns an error.
func (s *Socket) Close() error {
	return s.conn.Close()
}
