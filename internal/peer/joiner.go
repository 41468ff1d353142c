package peer

import (
	"fmt"
	"net"

	"github.com/RedPaladin7/battlelink/internal/catalogue"
	"github.com/RedPaladin7/battlelink/internal/dispatch"
	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/session"
	"github.com/RedPaladin7/battlelink/internal/transport"
	"github.com/RedPaladin7/battlelink/internal/wire"
)

// Joiner is the battle side that connects to an already-listening Host,
// receives the shared RNG seed in HANDSHAKE_RESPONSE, and goes second
// (original_source/peers/joiner.py).
type Joiner struct {
	*Engine
	Battle *dispatch.Engine
}

// NewJoiner builds a Joiner bound to socket, fielding pokemonName as its
// own combatant looked up from cat.
func NewJoiner(socket *transport.Socket, name, pokemonName string, cat catalogue.Catalogue, mode protocol.CommunicationMode) (*Joiner, error) {
	battle, err := dispatch.New(session.RoleJoiner, cat, pokemonName, mode)
	if err != nil {
		return nil, fmt.Errorf("peer: new joiner: %w", err)
	}
	return &Joiner{
		Engine: newEngine(socket, name),
		Battle: battle,
	}, nil
}

// Serve starts the background receive loop. Call before Connect, so the
// HANDSHAKE_RESPONSE the Host sends back doesn't arrive before anyone is
// listening for it.
func (j *Joiner) Serve() {
	go j.receiveLoop(j.handle)
}

// Connect sends HANDSHAKE_REQUEST to hostAddr (joiner.py's
// _send_handshake). The resulting HANDSHAKE_RESPONSE — and this side's own
// BATTLE_SETUP reply to it — arrive and are sent asynchronously through the
// receive loop, not from this call.
func (j *Joiner) Connect(hostAddr net.Addr) error {
	j.SetRemoteAddr(hostAddr)
	ok, err := j.SendToRemote(protocol.BuildHandshakeRequest())
	if err != nil {
		return fmt.Errorf("peer: send handshake request: %w", err)
	}
	if !ok {
		return fmt.Errorf("peer: handshake request was never acknowledged")
	}
	return nil
}

// Attack, ArmDefenseBoost, and SendChat mirror dispatch.Engine's
// driver-issued intents, sending the resulting wire message reliably.
func (j *Joiner) Attack(moveName string, useAttackBoost bool) error {
	msg, err := j.Battle.Attack(moveName, useAttackBoost)
	if err != nil {
		return err
	}
	go j.sendAllToRemote([]*wire.Message{msg})
	return nil
}

func (j *Joiner) ArmDefenseBoost() error {
	return j.Battle.ArmDefenseBoost()
}

func (j *Joiner) SendChatText(text string) error {
	msg, err := j.Battle.SendChatText(j.Name, text)
	if err != nil {
		return err
	}
	go j.sendAllToRemote([]*wire.Message{msg})
	return nil
}

func (j *Joiner) SendChatSticker(stickerData string) error {
	msg, err := j.Battle.SendChatSticker(j.Name, stickerData)
	if err != nil {
		return err
	}
	go j.sendAllToRemote([]*wire.Message{msg})
	return nil
}

// handle runs every freshly-arrived message through the battle engine and
// sends any responses back in a new goroutine (see Host.handle for why).
func (j *Joiner) handle(msg *wire.Message, addr net.Addr) {
	responses, terminated, err := j.Battle.Dispatch(msg)
	if err != nil {
		j.log.WithError(err).Error("peer: dispatch error")
		return
	}
	if terminated {
		j.log.Info("peer: battle ended")
	}
	if len(responses) == 0 {
		return
	}
	go j.sendAllToRemote(responses)
}
