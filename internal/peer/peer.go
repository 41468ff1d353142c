// Package peer wires the wire codec, the reliable channel, and the battle
// dispatch engine into running roles over a real datagram socket. It
// restructures original_source/peers/base_peer.py's BasePeer inheritance
// hierarchy (Host/Joiner/Spectator all extending one base class) into Go
// composition: Engine is the shared transport plumbing, and each role is a
// small wrapper that embeds it (spec.md §9's redesign note against
// inheritance for this polymorphism).
package peer

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/reliable"
	"github.com/RedPaladin7/battlelink/internal/transport"
	"github.com/RedPaladin7/battlelink/internal/wire"
)

// arrivalsBuffer sizes the ack-matching queue every reliable.Channel reads
// from. Deep enough to absorb a burst of ACKs without the receive loop
// blocking on Push.
const arrivalsBuffer = 32

// Engine is the transport-layer plumbing every role needs: a socket, the
// reliability layer on top of it, sequence-number bookkeeping for inbound
// messages, and a correlation id for logs (original_source's BasePeer
// constructor, minus everything that was really Host/Joiner/Spectator
// behavior leaking into the base class).
type Engine struct {
	Name      string
	SessionID uuid.UUID

	socket   *transport.Socket
	arrivals *reliable.Arrivals
	channel  *reliable.Channel

	mu               sync.Mutex
	remoteAddr       net.Addr
	lastProcessedSeq map[string]uint64

	log *logrus.Entry
}

func newEngine(socket *transport.Socket, name string) *Engine {
	id := uuid.New()
	arrivals := reliable.NewArrivals(arrivalsBuffer)
	return &Engine{
		Name:      name,
		SessionID: id,
		socket:    socket,
		arrivals:  arrivals,
		channel:   reliable.NewChannel(socket, arrivals),
		log: logrus.WithFields(logrus.Fields{
			"session_id": id.String(),
			"peer_name":  name,
		}),
	}
}

// SetRemoteAddr records the address this engine exchanges battle messages
// with. Guarded by a mutex since the accept/connect path (driver goroutine)
// and the receive loop both touch it.
func (e *Engine) SetRemoteAddr(addr net.Addr) {
	e.mu.Lock()
	e.remoteAddr = addr
	e.mu.Unlock()
}

// RemoteAddr returns the currently configured remote address, or nil if
// none has been set yet.
func (e *Engine) RemoteAddr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteAddr
}

// LocalAddr returns the bound socket's own address.
func (e *Engine) LocalAddr() net.Addr {
	return e.socket.LocalAddr()
}

// Close shuts down the underlying socket; any blocked receive loop returns.
func (e *Engine) Close() error {
	return e.socket.Close()
}

// Send reliably delivers msg to addr (original_source's send_message).
func (e *Engine) Send(msg *wire.Message, addr net.Addr) (bool, error) {
	if addr == nil {
		return false, fmt.Errorf("peer: no destination address")
	}
	return e.channel.SendWithAck(msg, addr)
}

// SendToRemote reliably delivers msg to the configured remote address.
func (e *Engine) SendToRemote(msg *wire.Message) (bool, error) {
	return e.Send(msg, e.RemoteAddr())
}

// sendAck replies to a reliable message's sequence number with a bare,
// unacknowledged ACK (original_source's handle_sequence_and_ack: "Always
// send an ACK back, even for duplicates").
func (e *Engine) sendAck(seq uint64, addr net.Addr) {
	encoded, err := wire.Encode(protocol.BuildAck(seq))
	if err != nil {
		e.log.WithError(err).Error("peer: failed to encode ack")
		return
	}
	if err := e.socket.SendTo([]byte(encoded), addr); err != nil {
		e.log.WithError(err).Warn("peer: failed to send ack")
	}
}

// isDuplicate reports whether seq has already been processed from addr,
// updating that sender's high-water mark as a side effect when it hasn't
// (original_source's handle_sequence_and_ack dedup check). Each sender keeps
// its own mark, since a Host hears from both a Joiner and a spectator whose
// sequence numbers both start at 1. Only ever called from the receive loop
// goroutine, so no lock is needed around the counters themselves.
func (e *Engine) isDuplicate(seq uint64, addr net.Addr) bool {
	if e.lastProcessedSeq == nil {
		e.lastProcessedSeq = make(map[string]uint64)
	}
	key := addr.String()
	if seq <= e.lastProcessedSeq[key] {
		return true
	}
	e.lastProcessedSeq[key] = seq
	return false
}

// handlerFunc processes one freshly-arrived, non-ACK, non-duplicate message.
// It must not block on the network: any reliable reply belongs on its own
// goroutine (original_source's listen_loop spawning a daemon thread per
// response) so the receive loop keeps draining the socket and can still
// observe the ACK that reply is waiting on.
type handlerFunc func(msg *wire.Message, addr net.Addr)

// receiveLoop is the shared pump every role runs in the background: read a
// datagram, decode it, route ACKs to the reliability layer, ack and dedupe
// everything else, and hand new messages to handle (original_source's
// BasePeer.listen_loop).
func (e *Engine) receiveLoop(handle handlerFunc) {
	for {
		raw, addr, err := e.socket.ReceiveFrom()
		if err != nil {
			e.log.WithError(err).Debug("peer: receive loop exiting")
			return
		}
		msg := wire.Decode(string(raw))

		if msg.Type() == protocol.Ack.String() {
			e.arrivals.Push(msg, addr)
			continue
		}

		if seq, ok := protocol.SequenceNumber(msg); ok {
			e.sendAck(seq, addr)
			if e.isDuplicate(seq, addr) {
				e.log.WithField("seq", seq).Debug("peer: dropping duplicate message")
				continue
			}
		}

		handle(msg, addr)
	}
}

// sendAllToRemote reliably delivers a sequence of outbound messages to the
// remote address, in order, stopping (and logging) on the first send that
// fails outright. Used from the background goroutines that follow up a
// handled message with its wire responses.
func (e *Engine) sendAllToRemote(msgs []*wire.Message) {
	for _, m := range msgs {
		if _, err := e.SendToRemote(m); err != nil {
			e.log.WithError(err).WithField("type", m.Type()).Error("peer: failed to send response")
			return
		}
	}
}
