// Package protocol defines the battle protocol's message-type registry and
// the typed builders/readers for each message shape (spec.md §6).
package protocol

// MessageType enumerates the wire message kinds. Kept as a string type, in
// the teacher's GameVariant/PlayerAction stringer style, rather than an
// opaque int, since the values ARE the wire bytes (no translation table).
type MessageType string

const (
	HandshakeRequest   MessageType = "HANDSHAKE_REQUEST"
	HandshakeResponse  MessageType = "HANDSHAKE_RESPONSE"
	SpectatorRequest   MessageType = "SPECTATOR_REQUEST"
	BattleSetup        MessageType = "BATTLE_SETUP"
	AttackAnnounce     MessageType = "ATTACK_ANNOUNCE"
	DefenseAnnounce    MessageType = "DEFENSE_ANNOUNCE"
	CalculationReport  MessageType = "CALCULATION_REPORT"
	CalculationConfirm MessageType = "CALCULATION_CONFIRM"
	ResolutionRequest  MessageType = "RESOLUTION_REQUEST"
	GameOver           MessageType = "GAME_OVER"
	ChatMessage        MessageType = "CHAT_MESSAGE"
	Ack                MessageType = "ACK"
)

// ContentType distinguishes the two payload shapes a CHAT_MESSAGE can carry.
type ContentType string

const (
	ContentText    ContentType = "TEXT"
	ContentSticker ContentType = "STICKER"
)

// CommunicationMode is how peers address each other (spec.md §6 Addressing).
type CommunicationMode string

const (
	ModeP2P       CommunicationMode = "P2P"
	ModeBroadcast CommunicationMode = "BROADCAST"
)

func (t MessageType) String() string { return string(t) }
