// Package reliable adds stop-and-wait ARQ on top of an unreliable datagram
// socket: sequence numbers, ACK waiting, and bounded retry (spec.md §5.2).
package reliable

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/transport"
	"github.com/RedPaladin7/battlelink/internal/wire"
)

// Timeout is how long a send waits for its ACK before retrying (spec.md
// §5.2: "the RFC specifies 500 milliseconds").
const Timeout = 500 * time.Millisecond

// MaxAttempts is the total number of sends (the first try plus retries)
// before giving up (spec.md §5.2: "the RFC specifies 3 attempts total").
const MaxAttempts = 3

// Arrivals is the queue a receive loop feeds and a Channel drains while
// waiting for an ACK. Anything pulled off that isn't the awaited ACK is
// handed back out through Deliveries so the rest of the session can still
// see it.
type Arrivals struct {
	incoming   chan arrival
	deliveries chan arrival
}

type arrival struct {
	msg  *wire.Message
	addr net.Addr
}

// NewArrivals creates an arrival queue with the given buffer depth.
func NewArrivals(buffer int) *Arrivals {
	return &Arrivals{
		incoming:   make(chan arrival, buffer),
		deliveries: make(chan arrival, buffer),
	}
}

// Push is called by the socket receive loop for every datagram that
// decodes into a message.
func (a *Arrivals) Push(msg *wire.Message, addr net.Addr) {
	a.incoming <- arrival{msg: msg, addr: addr}
}

// Deliveries yields messages that were not consumed as a waited-for ACK;
// this is what the session's dispatch loop ranges over.
func (a *Arrivals) Deliveries() <-chan arrival {
	return a.deliveries
}

// Message and Addr unpack an item received off Deliveries().
func (ar arrival) Message() *wire.Message { return ar.msg }
func (ar arrival) Addr() net.Addr         { return ar.addr }

// Channel wraps a Socket with the reliability layer: every outbound message
// is stamped with a monotonically increasing sequence number and resent up
// to MaxAttempts times until its ACK shows up on the arrival queue
// (original_source/protocol/reliability.py's ReliableChannel, restructured
// from a Python threading.Lock + queue.Queue into a sync.Mutex guarding a
// counter plus a channel-based borrow-and-restore discipline).
type Channel struct {
	socket   *transport.Socket
	arrivals *Arrivals

	mu   sync.Mutex
	next uint64
}

// NewChannel builds a reliable channel over socket, using arrivals as the
// source of inbound messages (including ACKs) for this peer.
func NewChannel(socket *transport.Socket, arrivals *Arrivals) *Channel {
	return &Channel{socket: socket, arrivals: arrivals, next: 1}
}

// SendWithAck encodes msg, stamps it with the next sequence number, and
// sends it to addr, retrying until acknowledged or MaxAttempts is
// exhausted. The sequence counter only advances on success (spec.md §5.2).
func (c *Channel) SendWithAck(msg *wire.Message, addr net.Addr) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.next
	protocol.SetSequenceNumber(msg, seq)

	encoded, err := wire.Encode(msg)
	if err != nil {
		return false, fmt.Errorf("reliable: encode: %w", err)
	}
	payload := []byte(encoded)

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		logrus.WithFields(logrus.Fields{
			"seq":     seq,
			"attempt": attempt,
			"type":    msg.Type(),
			"to":      addr.String(),
		}).Debug("reliable: sending")

		if err := c.socket.SendTo(payload, addr); err != nil {
			return false, fmt.Errorf("reliable: send: %w", err)
		}

		if c.waitForAck(seq) {
			c.next++
			logrus.WithFields(logrus.Fields{"seq": seq}).Debug("reliable: acknowledged")
			return true, nil
		}

		logrus.WithFields(logrus.Fields{"seq": seq, "attempt": attempt}).Warn("reliable: ack timeout")
	}

	logrus.WithFields(logrus.Fields{"seq": seq}).Error("reliable: delivery failed after max attempts")
	return false, nil
}

// waitForAck drains the arrival queue for up to Timeout looking for an ACK
// matching seq. Anything else it pulls off is forwarded to Deliveries so
// no message is lost while we're waiting (mirrors
// ReliableChannel._wait_for_ack's borrow-and-put-back queue discipline).
func (c *Channel) waitForAck(seq uint64) bool {
	deadline := time.After(Timeout)
	for {
		select {
		case <-deadline:
			return false
		case item := <-c.arrivals.incoming:
			if isMatchingAck(item.msg, seq) {
				return true
			}
			c.arrivals.deliveries <- item
		}
	}
}

func isMatchingAck(msg *wire.Message, seq uint64) bool {
	if msg.Type() != protocol.Ack.String() {
		return false
	}
	ackNumber, err := protocol.ParseAck(msg)
	if err != nil {
		return false
	}
	return ackNumber == seq
}
