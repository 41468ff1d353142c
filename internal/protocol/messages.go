package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/RedPaladin7/battlelink/internal/wire"
)

// ErrMalformed marks a message that parsed at the wire layer but is missing
// or has unparsable required fields for its message_type (spec.md §4.1: "a
// decoded message missing message_type is surfaced to the dispatcher, which
// treats it as malformed").
var ErrMalformed = errors.New("protocol: malformed message")

const (
	fieldSequenceNumber      = "sequence_number"
	fieldAckNumber           = "ack_number"
	fieldSeed                = "seed"
	fieldCommunicationMode   = "communication_mode"
	fieldPokemonName         = "pokemon_name"
	fieldStatBoosts          = "stat_boosts"
	fieldMoveName            = "move_name"
	fieldAttacker            = "attacker"
	fieldMoveUsed            = "move_used"
	fieldRemainingHealth     = "remaining_health"
	fieldDamageDealt         = "damage_dealt"
	fieldDefenderHPRemaining = "defender_hp_remaining"
	fieldStatusMessage       = "status_message"
	fieldWinner              = "winner"
	fieldLoser               = "loser"
	fieldSenderName          = "sender_name"
	fieldContentType         = "content_type"
	fieldMessageText         = "message_text"
	fieldStickerData         = "sticker_data"
)

// SetSequenceNumber stamps the reliable-channel sequence number onto a
// non-ACK message before it is encoded and sent.
func SetSequenceNumber(m *wire.Message, seq uint64) {
	m.Set(fieldSequenceNumber, strconv.FormatUint(seq, 10))
}

// SequenceNumber reads the sequence_number field, if present.
func SequenceNumber(m *wire.Message) (uint64, bool) {
	v, ok := m.Get(fieldSequenceNumber)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// BuildAck constructs an ACK for the given inbound sequence number. ACKs
// carry no sequence_number of their own (spec.md §6).
func BuildAck(ackNumber uint64) *wire.Message {
	m := wire.NewWithType(string(Ack))
	m.Set(fieldAckNumber, strconv.FormatUint(ackNumber, 10))
	return m
}

// ParseAck reads ack_number from an ACK message.
func ParseAck(m *wire.Message) (uint64, error) {
	v, ok := m.Get(fieldAckNumber)
	if !ok {
		return 0, fmt.Errorf("%w: ACK missing ack_number", ErrMalformed)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: ACK ack_number not numeric: %v", ErrMalformed, err)
	}
	return n, nil
}

// BuildHandshakeRequest constructs a HANDSHAKE_REQUEST (no payload).
func BuildHandshakeRequest() *wire.Message {
	return wire.NewWithType(string(HandshakeRequest))
}

// BuildSpectatorRequest constructs a SPECTATOR_REQUEST (no payload).
func BuildSpectatorRequest() *wire.Message {
	return wire.NewWithType(string(SpectatorRequest))
}

// BuildHandshakeResponse constructs a HANDSHAKE_RESPONSE carrying the shared
// RNG seed.
func BuildHandshakeResponse(seed int64) *wire.Message {
	m := wire.NewWithType(string(HandshakeResponse))
	m.Set(fieldSeed, strconv.FormatInt(seed, 10))
	return m
}

// ParseHandshakeResponse reads the seed field.
func ParseHandshakeResponse(m *wire.Message) (int64, error) {
	v, ok := m.Get(fieldSeed)
	if !ok {
		return 0, fmt.Errorf("%w: HANDSHAKE_RESPONSE missing seed", ErrMalformed)
	}
	seed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: HANDSHAKE_RESPONSE seed not numeric: %v", ErrMalformed, err)
	}
	return seed, nil
}

// StatBoosts is the remaining-use pair carried in BATTLE_SETUP.
type StatBoosts struct {
	SpecialAttackUses  int
	SpecialDefenseUses int
}

func encodeStatBoosts(b StatBoosts) string {
	return fmt.Sprintf("special_attack_uses=%d,special_defense_uses=%d", b.SpecialAttackUses, b.SpecialDefenseUses)
}

// decodeStatBoosts parses the stat_boosts field. Per the reference
// implementation's own fallback behavior, an unparsable value yields the
// default (5, 5) rather than making the whole BATTLE_SETUP malformed.
func decodeStatBoosts(raw string) StatBoosts {
	boosts := StatBoosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "special_attack_uses":
			boosts.SpecialAttackUses = n
		case "special_defense_uses":
			boosts.SpecialDefenseUses = n
		}
	}
	return boosts
}

// BuildBattleSetup constructs a BATTLE_SETUP message.
func BuildBattleSetup(mode CommunicationMode, pokemonName string, boosts StatBoosts) *wire.Message {
	m := wire.NewWithType(string(BattleSetup))
	m.Set(fieldCommunicationMode, string(mode))
	m.Set(fieldPokemonName, pokemonName)
	m.Set(fieldStatBoosts, encodeStatBoosts(boosts))
	return m
}

// ParsedBattleSetup is the decoded BATTLE_SETUP payload.
type ParsedBattleSetup struct {
	CommunicationMode CommunicationMode
	PokemonName       string
	Boosts            StatBoosts
}

// ParseBattleSetup reads a BATTLE_SETUP. An unknown pokemon_name is not
// caught here (the catalogue lookup makes that determination, spec.md §6);
// only a missing pokemon_name is malformed.
func ParseBattleSetup(m *wire.Message) (ParsedBattleSetup, error) {
	name, ok := m.Get(fieldPokemonName)
	if !ok || name == "" {
		return ParsedBattleSetup{}, fmt.Errorf("%w: BATTLE_SETUP missing pokemon_name", ErrMalformed)
	}
	mode := CommunicationMode(m.GetOr(fieldCommunicationMode, string(ModeP2P)))
	boosts := decodeStatBoosts(m.GetOr(fieldStatBoosts, ""))
	return ParsedBattleSetup{
		CommunicationMode: mode,
		PokemonName:       strings.ToLower(name),
		Boosts:            boosts,
	}, nil
}

// BuildAttackAnnounce constructs an ATTACK_ANNOUNCE message.
func BuildAttackAnnounce(moveName string) *wire.Message {
	m := wire.NewWithType(string(AttackAnnounce))
	m.Set(fieldMoveName, moveName)
	return m
}

// ParseAttackAnnounce reads move_name.
func ParseAttackAnnounce(m *wire.Message) (string, error) {
	v, ok := m.Get(fieldMoveName)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: ATTACK_ANNOUNCE missing move_name", ErrMalformed)
	}
	return v, nil
}

// BuildDefenseAnnounce constructs a DEFENSE_ANNOUNCE (no payload).
func BuildDefenseAnnounce() *wire.Message {
	return wire.NewWithType(string(DefenseAnnounce))
}

// CalculationReportFields is the payload of a CALCULATION_REPORT message.
type CalculationReportFields struct {
	Attacker            string
	MoveUsed            string
	RemainingHealth      int
	DamageDealt          int
	DefenderHPRemaining int
	StatusMessage        string
}

// BuildCalculationReport constructs a CALCULATION_REPORT.
func BuildCalculationReport(f CalculationReportFields) *wire.Message {
	m := wire.NewWithType(string(CalculationReport))
	m.Set(fieldAttacker, f.Attacker)
	m.Set(fieldMoveUsed, f.MoveUsed)
	m.Set(fieldRemainingHealth, strconv.Itoa(f.RemainingHealth))
	m.Set(fieldDamageDealt, strconv.Itoa(f.DamageDealt))
	m.Set(fieldDefenderHPRemaining, strconv.Itoa(f.DefenderHPRemaining))
	m.Set(fieldStatusMessage, f.StatusMessage)
	return m
}

// ParseCalculationReport reads a CALCULATION_REPORT.
func ParseCalculationReport(m *wire.Message) (CalculationReportFields, error) {
	damage, err := parseRequiredInt(m, fieldDamageDealt)
	if err != nil {
		return CalculationReportFields{}, err
	}
	hp, err := parseRequiredInt(m, fieldDefenderHPRemaining)
	if err != nil {
		return CalculationReportFields{}, err
	}
	remaining, err := parseRequiredInt(m, fieldRemainingHealth)
	if err != nil {
		return CalculationReportFields{}, err
	}
	return CalculationReportFields{
		Attacker:            m.GetOr(fieldAttacker, ""),
		MoveUsed:            m.GetOr(fieldMoveUsed, ""),
		RemainingHealth:     remaining,
		DamageDealt:         damage,
		DefenderHPRemaining: hp,
		StatusMessage:       m.GetOr(fieldStatusMessage, ""),
	}, nil
}

// BuildCalculationConfirm constructs a CALCULATION_CONFIRM (no payload).
func BuildCalculationConfirm() *wire.Message {
	return wire.NewWithType(string(CalculationConfirm))
}

// ResolutionRequestFields is the payload of a RESOLUTION_REQUEST.
type ResolutionRequestFields struct {
	Attacker            string
	MoveUsed            string
	DamageDealt         int
	DefenderHPRemaining int
}

// BuildResolutionRequest constructs a RESOLUTION_REQUEST.
func BuildResolutionRequest(f ResolutionRequestFields) *wire.Message {
	m := wire.NewWithType(string(ResolutionRequest))
	m.Set(fieldAttacker, f.Attacker)
	m.Set(fieldMoveUsed, f.MoveUsed)
	m.Set(fieldDamageDealt, strconv.Itoa(f.DamageDealt))
	m.Set(fieldDefenderHPRemaining, strconv.Itoa(f.DefenderHPRemaining))
	return m
}

// ParseResolutionRequest reads a RESOLUTION_REQUEST.
func ParseResolutionRequest(m *wire.Message) (ResolutionRequestFields, error) {
	damage, err := parseRequiredInt(m, fieldDamageDealt)
	if err != nil {
		return ResolutionRequestFields{}, err
	}
	hp, err := parseRequiredInt(m, fieldDefenderHPRemaining)
	if err != nil {
		return ResolutionRequestFields{}, err
	}
	return ResolutionRequestFields{
		Attacker:            m.GetOr(fieldAttacker, ""),
		MoveUsed:            m.GetOr(fieldMoveUsed, ""),
		DamageDealt:         damage,
		DefenderHPRemaining: hp,
	}, nil
}

// BuildGameOver constructs a GAME_OVER message.
func BuildGameOver(winner, loser string) *wire.Message {
	m := wire.NewWithType(string(GameOver))
	m.Set(fieldWinner, winner)
	m.Set(fieldLoser, loser)
	return m
}

// ParsedGameOver is the decoded GAME_OVER payload.
type ParsedGameOver struct {
	Winner string
	Loser  string
}

// ParseGameOver reads winner/loser.
func ParseGameOver(m *wire.Message) ParsedGameOver {
	return ParsedGameOver{
		Winner: m.GetOr(fieldWinner, "Unknown"),
		Loser:  m.GetOr(fieldLoser, "Unknown"),
	}
}

// BuildChatText constructs a CHAT_MESSAGE carrying plain text.
func BuildChatText(sender, text string) *wire.Message {
	m := wire.NewWithType(string(ChatMessage))
	m.Set(fieldSenderName, sender)
	m.Set(fieldContentType, string(ContentText))
	m.Set(fieldMessageText, text)
	return m
}

// BuildChatSticker constructs a CHAT_MESSAGE carrying a Base64 sticker.
func BuildChatSticker(sender, stickerData string) *wire.Message {
	m := wire.NewWithType(string(ChatMessage))
	m.Set(fieldSenderName, sender)
	m.Set(fieldContentType, string(ContentSticker))
	m.Set(fieldStickerData, stickerData)
	return m
}

// ParsedChatMessage is the decoded CHAT_MESSAGE payload.
type ParsedChatMessage struct {
	SenderName  string
	ContentType ContentType
	Text        string
	StickerData string
}

// ParseChatMessage reads a CHAT_MESSAGE. Missing payload for the declared
// content_type makes the message malformed.
func ParseChatMessage(m *wire.Message) (ParsedChatMessage, error) {
	kind := ContentType(m.GetOr(fieldContentType, string(ContentText)))
	out := ParsedChatMessage{
		SenderName:  m.GetOr(fieldSenderName, ""),
		ContentType: kind,
	}
	switch kind {
	case ContentText:
		v, ok := m.Get(fieldMessageText)
		if !ok {
			return ParsedChatMessage{}, fmt.Errorf("%w: CHAT_MESSAGE TEXT missing message_text", ErrMalformed)
		}
		out.Text = v
	case ContentSticker:
		v, ok := m.Get(fieldStickerData)
		if !ok {
			return ParsedChatMessage{}, fmt.Errorf("%w: CHAT_MESSAGE STICKER missing sticker_data", ErrMalformed)
		}
		out.StickerData = v
	default:
		return ParsedChatMessage{}, fmt.Errorf("%w: CHAT_MESSAGE unknown content_type %q", ErrMalformed, kind)
	}
	return out, nil
}

func parseRequiredInt(m *wire.Message, field string) (int, error) {
	v, ok := m.Get(field)
	if !ok {
		return 0, fmt.Errorf("%w: missing required field %q", ErrMalformed, field)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q not numeric: %v", ErrMalformed, field, err)
	}
	return n, nil
}
