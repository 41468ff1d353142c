package peer

import (
	"fmt"
	"net"
	"sync"

	"github.com/RedPaladin7/battlelink/internal/catalogue"
	"github.com/RedPaladin7/battlelink/internal/dispatch"
	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/session"
	"github.com/RedPaladin7/battlelink/internal/transport"
	"github.com/RedPaladin7/battlelink/internal/wire"
)

// Host is the battle side that binds a listening socket, approves a
// challenger's handshake, picks the shared RNG seed, and goes first
// (original_source/peers/host.py). It additionally accepts at most one
// spectator and forwards battle traffic to it (host.py's
// _handle_spectator_request / process_message override).
type Host struct {
	*Engine
	Battle *dispatch.Engine

	mode protocol.CommunicationMode

	mu            sync.Mutex
	spectatorAddr net.Addr

	// handshakeRequests queues HANDSHAKE_REQUEST senders for the driver to
	// approve or reject (host.py's request_queue: "Waits for a Joiner to
	// connect" is an interactive decision, not something dispatch can make
	// on its own).
	handshakeRequests chan net.Addr

	// spectatorForward queues a clone of every message that needs to reach
	// the spectator, drained in order by a single dedicated goroutine
	// (runSpectatorForwarder). A clone, not the original, is queued: the
	// original message may simultaneously be handed to h.Battle.Dispatch,
	// and Dispatch's reads race with the forwarder's own sequence-number
	// stamp if both touched the same *wire.Message. Queueing (rather than
	// sending inline) keeps handle() off the network, since a reliable send
	// to the spectator waits on an ACK that only this same receive loop can
	// ever deliver.
	spectatorForward chan *wire.Message
}

// handshakeRequestBuffer bounds how many unapproved connection requests can
// queue up before new ones are dropped.
const handshakeRequestBuffer = 4

// spectatorForwardBuffer bounds how many not-yet-forwarded messages can
// queue up before new ones are dropped.
const spectatorForwardBuffer = 32

// NewHost builds a Host bound to socket, fielding name as its own
// combatant looked up from cat.
func NewHost(socket *transport.Socket, name, pokemonName string, cat catalogue.Catalogue, mode protocol.CommunicationMode) (*Host, error) {
	battle, err := dispatch.New(session.RoleHost, cat, pokemonName, mode)
	if err != nil {
		return nil, fmt.Errorf("peer: new host: %w", err)
	}
	return &Host{
		Engine:            newEngine(socket, name),
		Battle:            battle,
		mode:              mode,
		handshakeRequests: make(chan net.Addr, handshakeRequestBuffer),
		spectatorForward:  make(chan *wire.Message, spectatorForwardBuffer),
	}, nil
}

// HandshakeRequests yields the address of each peer that has asked to
// connect, for the driver to approve (via ApproveHandshake) or ignore.
func (h *Host) HandshakeRequests() <-chan net.Addr {
	return h.handshakeRequests
}

// Serve starts the background receive loop. Call once, after the socket is
// bound (host.py's accept(): the listener thread only starts once a Joiner
// has been accepted, but nothing stops us from running it the whole time —
// HANDSHAKE_REQUEST and SPECTATOR_REQUEST are handled the same way either
// way).
func (h *Host) Serve() {
	go h.receiveLoop(h.handle)
	go h.runSpectatorForwarder()
}

// ApproveHandshake accepts a pending HANDSHAKE_REQUEST from joinerAddr,
// picks seed as the shared RNG seed, and sends HANDSHAKE_RESPONSE
// (host.py's accept(): "Send HANDSHAKE_RESPONSE with the seed" then
// "Initialize our RNG with the same seed"). The driver supplies seed and
// the accept/reject decision; dispatch.Engine has no path for this because
// it requires the interactive approval spec.md §4.6 describes.
func (h *Host) ApproveHandshake(joinerAddr net.Addr, seed int64) error {
	h.SetRemoteAddr(joinerAddr)
	h.Battle.Session.Seed = seed
	h.Battle.Session.Phase = session.PhaseSetup

	ok, err := h.SendToRemote(protocol.BuildHandshakeResponse(seed))
	if err != nil {
		return fmt.Errorf("peer: send handshake response: %w", err)
	}
	if !ok {
		return fmt.Errorf("peer: handshake response was never acknowledged")
	}
	return nil
}

// AcceptSpectator records a spectator's address and replies with a seedless
// HANDSHAKE_RESPONSE (host.py's _handle_spectator_request). Only one
// spectator is supported at a time, matching original_source.
func (h *Host) AcceptSpectator(addr net.Addr) error {
	h.mu.Lock()
	if h.spectatorAddr != nil {
		h.mu.Unlock()
		return fmt.Errorf("peer: a spectator is already connected")
	}
	h.spectatorAddr = addr
	h.mu.Unlock()

	ok, err := h.Send(protocol.BuildHandshakeResponse(0), addr)
	if err != nil {
		return fmt.Errorf("peer: send spectator handshake: %w", err)
	}
	if !ok {
		return fmt.Errorf("peer: spectator handshake was never acknowledged")
	}
	return nil
}

func (h *Host) spectator() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spectatorAddr
}

// Attack, ArmDefenseBoost, and SendChat mirror dispatch.Engine's
// driver-issued intents, sending the resulting wire message(s) reliably
// (and forwarding them to a connected spectator, host.py's send_message
// override).
func (h *Host) Attack(moveName string, useAttackBoost bool) error {
	msg, err := h.Battle.Attack(moveName, useAttackBoost)
	if err != nil {
		return err
	}
	go h.broadcast([]*wire.Message{msg})
	return nil
}

func (h *Host) ArmDefenseBoost() error {
	return h.Battle.ArmDefenseBoost()
}

func (h *Host) SendChatText(text string) error {
	msg, err := h.Battle.SendChatText(h.Name, text)
	if err != nil {
		return err
	}
	go h.broadcast([]*wire.Message{msg})
	return nil
}

func (h *Host) SendChatSticker(stickerData string) error {
	msg, err := h.Battle.SendChatSticker(h.Name, stickerData)
	if err != nil {
		return err
	}
	go h.broadcast([]*wire.Message{msg})
	return nil
}

// broadcast sends msgs to the Joiner and, if one is connected, queues them
// for the spectator too (host.py's send_message: "Also send to spectator if
// connected").
func (h *Host) broadcast(msgs []*wire.Message) {
	h.sendAllToRemote(msgs)
	for _, m := range msgs {
		h.enqueueSpectatorForward(m)
	}
}

// runSpectatorForwarder is the single goroutine that actually talks to the
// spectator, draining spectatorForward strictly in the order messages were
// queued so spectator-visible traffic can never reorder relative to how the
// battle actually progressed, the concurrent equivalent of host.py's
// synchronous send_message forward.
func (h *Host) runSpectatorForwarder() {
	for msg := range h.spectatorForward {
		spec := h.spectator()
		if spec == nil {
			continue
		}
		if _, err := h.Send(msg, spec); err != nil {
			h.log.WithError(err).Warn("peer: failed to forward message to spectator")
		}
	}
}

// enqueueSpectatorForward queues a clone of msg for runSpectatorForwarder,
// if a spectator is connected. Cloning is what makes this safe to call right
// before (or instead of) handing the original msg to h.Battle.Dispatch:
// the forwarder stamps its own sequence number on its own copy, so it never
// races Dispatch's read of msg.
func (h *Host) enqueueSpectatorForward(msg *wire.Message) {
	if h.spectator() == nil {
		return
	}
	select {
	case h.spectatorForward <- msg.Clone():
	default:
		h.log.Warn("peer: spectator forward queue full, dropping message")
	}
}

// handle routes one freshly-arrived message: SPECTATOR_REQUEST is
// intercepted before it ever reaches dispatch (host.py's process_message
// override), everything else is queued for the spectator (if any) and then
// run through the battle engine, with any resulting responses sent back in
// a new goroutine so the receive loop is never blocked waiting on their
// ACKs (host.py/base_peer.py's background-thread-per-response pattern).
func (h *Host) handle(msg *wire.Message, addr net.Addr) {
	switch protocol.MessageType(msg.Type()) {
	case protocol.SpectatorRequest:
		go func() {
			if err := h.AcceptSpectator(addr); err != nil {
				h.log.WithError(err).Warn("peer: spectator request rejected")
			}
		}()
		return

	case protocol.HandshakeRequest:
		select {
		case h.handshakeRequests <- addr:
		default:
			h.log.Warn("peer: handshake request queue full, dropping request")
		}
		return
	}

	h.enqueueSpectatorForward(msg)

	responses, terminated, err := h.Battle.Dispatch(msg)
	if err != nil {
		h.log.WithError(err).Error("peer: dispatch error")
		return
	}
	if terminated {
		h.log.Info("peer: battle ended")
	}
	if len(responses) == 0 {
		return
	}
	go h.broadcast(responses)
}
