// Package dispatch routes decoded messages to session state updates and
// outbound responses, per the phase table in spec.md §4.4 and the
// attack-round sub-protocol in §4.5
// (original_source/protocol/message_handlers.py).
package dispatch

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/battlelink/internal/battle"
	"github.com/RedPaladin7/battlelink/internal/catalogue"
	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/session"
	"github.com/RedPaladin7/battlelink/internal/wire"
)

// ChatEntry is one line of the best-effort chat transcript a peer keeps
// (SPEC_FULL.md supplement; original_source has no persistent log, only
// console prints — this restores the transcript original_source's CLI
// scrollback gave for free).
type ChatEntry struct {
	Sender      string
	ContentType protocol.ContentType
	Text        string
	StickerData string
}

// Engine binds a Session to the combatant data and catalogue it needs to
// process inbound messages and produce outbound ones. It is not
// goroutine-safe; callers serialize access to one Engine (spec.md §5:
// "state mutation [confined] to one task").
type Engine struct {
	Session *session.Session

	cat               catalogue.Catalogue
	selfPokemonName   string
	communicationMode protocol.CommunicationMode

	ChatLog []ChatEntry
}

// New creates an Engine for a fresh session. selfPokemonName is the
// catalogue key for this side's own combatant, looked up immediately so
// Session.Self is populated from the start.
func New(role session.Role, cat catalogue.Catalogue, selfPokemonName string, mode protocol.CommunicationMode) (*Engine, error) {
	self, ok := cat.Get(selfPokemonName)
	if !ok {
		return nil, fmt.Errorf("dispatch: unknown combatant %q", selfPokemonName)
	}
	sess := session.New(role)
	sess.Self = self
	return &Engine{
		Session:           sess,
		cat:               cat,
		selfPokemonName:   selfPokemonName,
		communicationMode: mode,
	}, nil
}

// Dispatch routes one decoded, non-ACK message to the handler for its
// type, returning any outbound messages it produces (in order) and
// whether the session is now terminated.
func (e *Engine) Dispatch(msg *wire.Message) (responses []*wire.Message, terminated bool, err error) {
	msgType := protocol.MessageType(msg.Type())

	logrus.WithFields(logrus.Fields{
		"role":  e.Session.Role,
		"phase": e.Session.Phase,
		"type":  msgType,
	}).Debug("dispatch: routing message")

	switch msgType {
	case protocol.HandshakeRequest:
		return e.handleHandshakeRequest()
	case protocol.HandshakeResponse:
		return e.handleHandshakeResponse(msg)
	case protocol.SpectatorRequest:
		return e.handleSpectatorRequest()
	case protocol.BattleSetup:
		return e.handleBattleSetup(msg)
	case protocol.AttackAnnounce:
		return e.handleAttackAnnounce(msg)
	case protocol.DefenseAnnounce:
		return e.handleDefenseAnnounce()
	case protocol.CalculationReport:
		return e.handleCalculationReport(msg)
	case protocol.CalculationConfirm:
		return e.handleCalculationConfirm()
	case protocol.ResolutionRequest:
		return e.handleResolutionRequest(msg)
	case protocol.GameOver:
		return e.handleGameOver(msg)
	case protocol.ChatMessage:
		return e.handleChatMessage(msg)
	default:
		logrus.WithField("type", msgType).Warn("dispatch: unknown message type, dropped")
		return nil, false, nil
	}
}

// --- handshake & setup ---

func (e *Engine) handleHandshakeRequest() ([]*wire.Message, bool, error) {
	// The host's driver is the one that actually picks the seed and replies
	// (spec.md §4.6: "Host, on interactive approval"); the dispatcher does
	// nothing with the request. peer.Host intercepts it before dispatch and
	// queues the sender on HandshakeRequests for the driver to approve.
	return nil, false, nil
}

func (e *Engine) handleHandshakeResponse(msg *wire.Message) ([]*wire.Message, bool, error) {
	seed, err := protocol.ParseHandshakeResponse(msg)
	if err != nil {
		logrus.WithError(err).Warn("dispatch: malformed HANDSHAKE_RESPONSE, dropped")
		return nil, false, nil
	}
	e.Session.Seed = seed
	e.Session.Phase = session.PhaseSetup

	boosts := protocol.StatBoosts{
		SpecialAttackUses:  e.Session.OwnBoosts.AttackUsesRemaining,
		SpecialDefenseUses: e.Session.OwnBoosts.DefenseUsesRemaining,
	}
	setup := protocol.BuildBattleSetup(e.communicationMode, e.selfPokemonName, boosts)
	e.Session.MarkBattleSetupSent()
	return []*wire.Message{setup}, false, nil
}

func (e *Engine) handleSpectatorRequest() ([]*wire.Message, bool, error) {
	// Automatically accepted by the host (spec.md §4.7); no session state
	// change here. peer.Host intercepts the request before dispatch and
	// records the spectator's address itself.
	return nil, false, nil
}

func (e *Engine) handleBattleSetup(msg *wire.Message) ([]*wire.Message, bool, error) {
	parsed, err := protocol.ParseBattleSetup(msg)
	if err != nil {
		logrus.WithError(err).Warn("dispatch: malformed BATTLE_SETUP, dropped")
		return nil, false, nil
	}

	opponent, ok := e.cat.Get(parsed.PokemonName)
	if !ok {
		logrus.WithField("pokemon_name", parsed.PokemonName).Warn("dispatch: unknown combatant in BATTLE_SETUP, dropped")
		return nil, false, nil
	}
	e.Session.Opponent = opponent
	e.Session.OpponentBoosts.AttackUsesRemaining = parsed.Boosts.SpecialAttackUses
	e.Session.OpponentBoosts.DefenseUsesRemaining = parsed.Boosts.SpecialDefenseUses

	var responses []*wire.Message
	if e.Session.Role == session.RoleHost && e.Session.MarkBattleSetupSent() {
		boosts := protocol.StatBoosts{
			SpecialAttackUses:  e.Session.OwnBoosts.AttackUsesRemaining,
			SpecialDefenseUses: e.Session.OwnBoosts.DefenseUsesRemaining,
		}
		responses = append(responses, protocol.BuildBattleSetup(e.communicationMode, e.selfPokemonName, boosts))
	}

	e.Session.Phase = session.PhaseWaitingForMove
	return responses, false, nil
}

// --- attack round (spec.md §4.5) ---

// handleAttackAnnounce is the defender's side of step 1/2: receiving the
// attack, replying with DEFENSE_ANNOUNCE, and emitting our own
// CALCULATION_REPORT (original_source's handle_attack_announce).
func (e *Engine) handleAttackAnnounce(msg *wire.Message) ([]*wire.Message, bool, error) {
	moveName, err := protocol.ParseAttackAnnounce(msg)
	if err != nil {
		logrus.WithError(err).Warn("dispatch: malformed ATTACK_ANNOUNCE, dropped")
		return nil, false, nil
	}
	if e.Session.Opponent == nil || e.Session.Self == nil {
		logrus.Warn("dispatch: ATTACK_ANNOUNCE before combatants are set up, dropped")
		return nil, false, nil
	}

	attacker := e.Session.Opponent
	defender := e.Session.Self
	move := battle.MoveFromAttackerType(moveName, attacker)

	e.Session.BeginAttack(attacker, defender, move)
	defenseBoostApplied := e.Session.OwnBoosts.ConsumeArmedDefenseBoost()

	state := battle.BattleState{Attacker: attacker, Defender: defender}
	// We don't know whether the opponent applied their attack boost; our
	// local evaluation assumes not (original_source passes attack_boost=1.0
	// here) and RESOLUTION_REQUEST reconciles any divergence.
	damage := battle.CalculateDamage(state, move, false, defenseBoostApplied)
	hpRemaining := clampFloor(defender.CurrentHP - damage)

	e.Session.Pending.DamageDealt = damage
	e.Session.Pending.DefenderHPRemaining = hpRemaining

	report := e.buildCalculationReport(attacker, defender, move, damage, hpRemaining)
	return []*wire.Message{protocol.BuildDefenseAnnounce(), report}, false, nil
}

// handleDefenseAnnounce is the attacker's side of step 2: the defender
// acknowledged, so now we compute damage and send our own
// CALCULATION_REPORT (original_source's handle_defense_announce).
func (e *Engine) handleDefenseAnnounce() ([]*wire.Message, bool, error) {
	if e.Session.Pending == nil {
		logrus.Warn("dispatch: DEFENSE_ANNOUNCE with no pending attack, dropped")
		return nil, false, nil
	}
	pending := e.Session.Pending
	attackBoostApplied := e.Session.OwnBoosts.AttackBoostAppliedThisTurn

	state := battle.BattleState{Attacker: pending.Attacker, Defender: pending.Defender}
	damage := battle.CalculateDamage(state, pending.Move, attackBoostApplied, false)
	hpRemaining := clampFloor(pending.Defender.CurrentHP - damage)

	pending.DamageDealt = damage
	pending.DefenderHPRemaining = hpRemaining

	report := e.buildCalculationReport(pending.Attacker, pending.Defender, pending.Move, damage, hpRemaining)
	return []*wire.Message{report}, false, nil
}

func (e *Engine) buildCalculationReport(attacker, defender *battle.Combatant, move battle.Move, damage, hpRemaining int) *wire.Message {
	typeMultiplier := battle.TypeMultiplier(defender, move.ElementType)
	status := battle.GenerateStatusMessage(attacker.Name, move.Name, typeMultiplier)
	return protocol.BuildCalculationReport(protocol.CalculationReportFields{
		Attacker:            attacker.Name,
		MoveUsed:            move.Name,
		RemainingHealth:     attacker.CurrentHP,
		DamageDealt:         damage,
		DefenderHPRemaining: hpRemaining,
		StatusMessage:       status,
	})
}

// handleCalculationReport is step 3: compare the opponent's report with
// our own stored calculation and either confirm or request resolution
// (original_source's handle_calculation_report).
func (e *Engine) handleCalculationReport(msg *wire.Message) ([]*wire.Message, bool, error) {
	fields, err := protocol.ParseCalculationReport(msg)
	if err != nil {
		logrus.WithError(err).Warn("dispatch: malformed CALCULATION_REPORT, dropped")
		return nil, false, nil
	}
	if e.Session.Pending == nil {
		logrus.Warn("dispatch: CALCULATION_REPORT with no local calculation to compare, dropped")
		return nil, false, nil
	}
	pending := e.Session.Pending

	if fields.DamageDealt == pending.DamageDealt && fields.DefenderHPRemaining == pending.DefenderHPRemaining {
		pending.Defender.CurrentHP = pending.DefenderHPRemaining
		responses := []*wire.Message{protocol.BuildCalculationConfirm()}
		if pending.Defender.Fainted() {
			responses = append(responses, protocol.BuildGameOver(pending.Attacker.Name, pending.Defender.Name))
			e.Session.Terminate("defender fainted, confirmed calculation")
			return responses, true, nil
		}
		return responses, false, nil
	}

	logrus.WithFields(logrus.Fields{
		"our_damage":   pending.DamageDealt,
		"their_damage": fields.DamageDealt,
	}).Warn("dispatch: calculation mismatch, requesting resolution")
	resolution := protocol.BuildResolutionRequest(protocol.ResolutionRequestFields{
		Attacker:            pending.Attacker.Name,
		MoveUsed:            pending.Move.Name,
		DamageDealt:         pending.DamageDealt,
		DefenderHPRemaining: pending.DefenderHPRemaining,
	})
	return []*wire.Message{resolution}, false, nil
}

// handleCalculationConfirm is step 4 on the defender's side: the attacker
// agrees with our values, so apply them and advance the turn
// (original_source's handle_calculation_confirm).
func (e *Engine) handleCalculationConfirm() ([]*wire.Message, bool, error) {
	if e.Session.Pending == nil {
		logrus.Warn("dispatch: CALCULATION_CONFIRM with no pending attack, dropped")
		return nil, false, nil
	}
	pending := e.Session.Pending
	pending.Defender.CurrentHP = pending.DefenderHPRemaining

	if pending.Defender.Fainted() {
		e.Session.Terminate("defender fainted, confirmed calculation")
		return nil, true, nil
	}
	e.Session.CompleteRound()
	return nil, false, nil
}

// handleResolutionRequest adopts the attacker's authoritative values when
// our own calculation diverged (original_source's handle_resolution_request).
func (e *Engine) handleResolutionRequest(msg *wire.Message) ([]*wire.Message, bool, error) {
	fields, err := protocol.ParseResolutionRequest(msg)
	if err != nil {
		logrus.WithError(err).Warn("dispatch: malformed RESOLUTION_REQUEST, dropped")
		return nil, false, nil
	}
	if e.Session.Pending == nil {
		logrus.Error("dispatch: RESOLUTION_REQUEST with no local calculation, battle state inconsistent")
		e.Session.Terminate("resolution request with no pending attack")
		return nil, true, nil
	}
	pending := e.Session.Pending
	pending.Defender.CurrentHP = fields.DefenderHPRemaining

	if pending.Defender.Fainted() {
		gameOver := protocol.BuildGameOver(fields.Attacker, pending.Defender.Name)
		e.Session.Terminate("defender fainted, resolution adopted")
		return []*wire.Message{gameOver}, true, nil
	}
	e.Session.CompleteRound()
	return nil, false, nil
}

func (e *Engine) handleGameOver(msg *wire.Message) ([]*wire.Message, bool, error) {
	result := protocol.ParseGameOver(msg)
	logrus.WithFields(logrus.Fields{
		"winner": result.Winner,
		"loser":  result.Loser,
	}).Info("dispatch: battle over")
	e.Session.Terminate("received GAME_OVER")
	return nil, true, nil
}

func (e *Engine) handleChatMessage(msg *wire.Message) ([]*wire.Message, bool, error) {
	parsed, err := protocol.ParseChatMessage(msg)
	if err != nil {
		logrus.WithError(err).Warn("dispatch: malformed CHAT_MESSAGE, dropped")
		return nil, false, nil
	}
	e.ChatLog = append(e.ChatLog, ChatEntry{
		Sender:      parsed.SenderName,
		ContentType: parsed.ContentType,
		Text:        parsed.Text,
		StickerData: parsed.StickerData,
	})
	return nil, false, nil
}

// --- driver-issued intents (spec.md §6 "User-driver interface") ---

// ErrNotYourTurn etc. are the reasons an intent can be rejected, surfaced
// synchronously to the driver (spec.md §6).
var (
	ErrNotYourTurn       = fmt.Errorf("dispatch: not your turn")
	ErrWrongPhase        = fmt.Errorf("dispatch: wrong phase for this action")
	ErrNoBoostsRemaining = fmt.Errorf("dispatch: no boosts remaining")
	ErrNoOpponentYet     = fmt.Errorf("dispatch: no opponent yet")
	ErrSessionTerminated = fmt.Errorf("dispatch: session terminated")
)

// Attack builds the ATTACK_ANNOUNCE for a driver-issued attack intent,
// applying an attack boost first if requested (spec.md §4.5 step 1: "the
// flag is set before the local damage computation").
func (e *Engine) Attack(moveName string, useAttackBoost bool) (*wire.Message, error) {
	if e.Session.Terminated() {
		return nil, ErrSessionTerminated
	}
	if e.Session.Opponent == nil {
		return nil, ErrNoOpponentYet
	}
	if !e.Session.IsMyTurn {
		return nil, ErrNotYourTurn
	}
	if e.Session.Phase != session.PhaseWaitingForMove {
		return nil, ErrWrongPhase
	}
	if useAttackBoost && !e.Session.OwnBoosts.UseAttackBoost() {
		return nil, ErrNoBoostsRemaining
	}

	move := battle.MoveFromAttackerType(moveName, e.Session.Self)
	e.Session.BeginAttack(e.Session.Self, e.Session.Opponent, move)
	return protocol.BuildAttackAnnounce(moveName), nil
}

// ArmDefenseBoost arms a defense boost for the next incoming attack
// (spec.md §6 intent "arm_defense_boost()").
func (e *Engine) ArmDefenseBoost() error {
	if e.Session.Terminated() {
		return ErrSessionTerminated
	}
	if !e.Session.OwnBoosts.ArmDefenseBoost() {
		return ErrNoBoostsRemaining
	}
	return nil
}

// SendChatText and SendChatSticker build outbound CHAT_MESSAGE payloads
// for a driver-issued chat intent (spec.md §6 intent "send_chat(kind,
// payload)").
func (e *Engine) SendChatText(senderName, text string) (*wire.Message, error) {
	if e.Session.Terminated() {
		return nil, ErrSessionTerminated
	}
	return protocol.BuildChatText(senderName, text), nil
}

func (e *Engine) SendChatSticker(senderName, stickerData string) (*wire.Message, error) {
	if e.Session.Terminated() {
		return nil, ErrSessionTerminated
	}
	return protocol.BuildChatSticker(senderName, stickerData), nil
}

func clampFloor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
