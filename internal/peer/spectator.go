package peer

import (
	"fmt"
	"net"

	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/transport"
	"github.com/RedPaladin7/battlelink/internal/wire"
)

// EventKind distinguishes the shapes of update a Spectator surfaces.
type EventKind string

const (
	EventConnected   EventKind = "connected"
	EventChat        EventKind = "chat"
	EventBattleSetup EventKind = "battle_setup"
	EventAttack      EventKind = "attack"
	EventDamage      EventKind = "damage"
	EventGameOver    EventKind = "game_over"
)

// Event is one parsed battle update for the driver layer to render
// (spectator.py's _display_chat_message / _display_damage_report /
// _display_game_over, restructured from direct console prints into data so
// a CLI or an HTTP driver can present it however it likes).
type Event struct {
	Kind EventKind

	ChatSender  string
	ChatText    string
	IsSticker   bool

	PokemonName string

	MoveName string

	StatusMessage       string
	DamageDealt         int
	DefenderHPRemaining int

	Winner string
	Loser  string
}

// eventBuffer bounds how many unread events a slow driver can fall behind
// by before new ones are dropped rather than blocking the receive loop.
const eventBuffer = 64

// Spectator watches a battle without participating in it: no combatant, no
// turns, just battle updates and chat (original_source/peers/spectator.py).
type Spectator struct {
	*Engine
	events chan Event
}

// NewSpectator builds a Spectator bound to socket.
func NewSpectator(socket *transport.Socket, name string) *Spectator {
	return &Spectator{
		Engine: newEngine(socket, name),
		events: make(chan Event, eventBuffer),
	}
}

// Serve starts the background receive loop.
func (s *Spectator) Serve() {
	go s.receiveLoop(s.handle)
}

// Events yields parsed battle updates as they arrive.
func (s *Spectator) Events() <-chan Event {
	return s.events
}

// Connect sends SPECTATOR_REQUEST to hostAddr (spectator.py's
// _send_spectator_request). EventConnected fires on Events() once the Host
// replies with HANDSHAKE_RESPONSE.
func (s *Spectator) Connect(hostAddr net.Addr) error {
	s.SetRemoteAddr(hostAddr)
	ok, err := s.SendToRemote(protocol.BuildSpectatorRequest())
	if err != nil {
		return fmt.Errorf("peer: send spectator request: %w", err)
	}
	if !ok {
		return fmt.Errorf("peer: spectator request was never acknowledged")
	}
	return nil
}

// SendChatText sends a chat message to the battle (spectator.py's chat():
// "Spectators can only send text messages").
func (s *Spectator) SendChatText(text string) error {
	msg := protocol.BuildChatText(s.Name, text)
	go s.sendAllToRemote([]*wire.Message{msg})
	return nil
}

// handle parses each incoming message into a display Event; anything it
// doesn't recognize (DEFENSE_ANNOUNCE, CALCULATION_CONFIRM,
// RESOLUTION_REQUEST and other types this role has no opinion on) is
// silently dropped, matching spectator.py's process_message.
func (s *Spectator) handle(msg *wire.Message, addr net.Addr) {
	switch protocol.MessageType(msg.Type()) {
	case protocol.HandshakeResponse:
		s.emit(Event{Kind: EventConnected})

	case protocol.ChatMessage:
		parsed, err := protocol.ParseChatMessage(msg)
		if err != nil {
			s.log.WithError(err).Warn("peer: malformed chat message, dropped")
			return
		}
		s.emit(Event{
			Kind:       EventChat,
			ChatSender: parsed.SenderName,
			ChatText:   parsed.Text,
			IsSticker:  parsed.ContentType == protocol.ContentSticker,
		})

	case protocol.BattleSetup:
		parsed, err := protocol.ParseBattleSetup(msg)
		if err != nil {
			s.log.WithError(err).Warn("peer: malformed battle setup, dropped")
			return
		}
		s.emit(Event{Kind: EventBattleSetup, PokemonName: parsed.PokemonName})

	case protocol.AttackAnnounce:
		moveName, err := protocol.ParseAttackAnnounce(msg)
		if err != nil {
			s.log.WithError(err).Warn("peer: malformed attack announce, dropped")
			return
		}
		s.emit(Event{Kind: EventAttack, MoveName: moveName})

	case protocol.CalculationReport:
		fields, err := protocol.ParseCalculationReport(msg)
		if err != nil {
			s.log.WithError(err).Warn("peer: malformed calculation report, dropped")
			return
		}
		s.emit(Event{
			Kind:                EventDamage,
			StatusMessage:       fields.StatusMessage,
			DamageDealt:         fields.DamageDealt,
			DefenderHPRemaining: fields.DefenderHPRemaining,
		})

	case protocol.GameOver:
		result := protocol.ParseGameOver(msg)
		s.emit(Event{Kind: EventGameOver, Winner: result.Winner, Loser: result.Loser})
	}
}

func (s *Spectator) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.WithField("kind", ev.Kind).Warn("peer: event buffer full, dropping update")
	}
}
