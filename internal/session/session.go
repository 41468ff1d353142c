// Package session tracks the state machine a running battle drives:
// phase, turn ownership, stat-boost ledgers, and the in-flight attack slot
// (spec.md §3-4.6; original_source/protocol/battle_manager.py's
// BattleManager).
package session

import (
	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/battlelink/internal/battle"
)

// Phase is one point in the session's lifecycle (spec.md §3 Session).
type Phase string

const (
	PhaseHandshaking    Phase = "handshaking"
	PhaseSetup          Phase = "setup"
	PhaseWaitingForMove Phase = "waiting_for_move"
	PhaseProcessingTurn Phase = "processing_turn"
	PhaseTerminated     Phase = "terminated"
)

// Role is which side of the battle this session represents.
type Role string

const (
	RoleHost      Role = "host"
	RoleJoiner    Role = "joiner"
	RoleSpectator Role = "spectator"
)

// DefaultBoostUses is each side's starting allocation of attack and defense
// boosts (original_source/protocol/constants.py DEFAULT_SPECIAL_ATTACK_USES
// / DEFAULT_SPECIAL_DEFENSE_USES, both 5).
const DefaultBoostUses = 5

// BoostLedger tracks one side's remaining boost uses and this-turn flags
// (spec.md §3 BoostLedger).
type BoostLedger struct {
	AttackUsesRemaining  int
	DefenseUsesRemaining int

	AttackBoostAppliedThisTurn  bool
	DefenseBoostAppliedThisTurn bool
	DefenseBoostArmed           bool
}

// NewBoostLedger returns a ledger with the default allocation of both
// boost kinds.
func NewBoostLedger() *BoostLedger {
	return &BoostLedger{
		AttackUsesRemaining:  DefaultBoostUses,
		DefenseUsesRemaining: DefaultBoostUses,
	}
}

// UseAttackBoost consumes one attack-boost use for this turn, if any
// remain.
func (b *BoostLedger) UseAttackBoost() bool {
	if b.AttackUsesRemaining <= 0 {
		return false
	}
	b.AttackUsesRemaining--
	b.AttackBoostAppliedThisTurn = true
	return true
}

// ArmDefenseBoost marks a defense boost as armed for the next incoming
// attack, without consuming it yet.
func (b *BoostLedger) ArmDefenseBoost() bool {
	if b.DefenseUsesRemaining <= 0 {
		return false
	}
	b.DefenseBoostArmed = true
	return true
}

// ConsumeArmedDefenseBoost consumes the armed defense boost, if any, when
// an attack actually arrives (original_source's consume_armed_defense_boost).
func (b *BoostLedger) ConsumeArmedDefenseBoost() bool {
	if !b.DefenseBoostArmed {
		return false
	}
	if b.DefenseUsesRemaining <= 0 {
		b.DefenseBoostArmed = false
		return false
	}
	b.DefenseUsesRemaining--
	b.DefenseBoostAppliedThisTurn = true
	b.DefenseBoostArmed = false
	return true
}

// ResetTurnFlags clears the this-turn flags at the end of a round, leaving
// the remaining-use counters untouched.
func (b *BoostLedger) ResetTurnFlags() {
	b.AttackBoostAppliedThisTurn = false
	b.DefenseBoostAppliedThisTurn = false
}

// PendingAttack is the slot held between ATTACK_ANNOUNCE and
// CALCULATION_CONFIRM/RESOLUTION_REQUEST (spec.md §3 PendingAttack).
type PendingAttack struct {
	Attacker *battle.Combatant
	Defender *battle.Combatant
	Move     battle.Move

	DamageDealt         int
	DefenderHPRemaining int
}

// Session is the per-peer battle state machine.
type Session struct {
	Role Role
	Seed int64

	RemoteAddr string

	Phase      Phase
	IsMyTurn   bool

	Self     *battle.Combatant
	Opponent *battle.Combatant

	OwnBoosts      *BoostLedger
	OpponentBoosts *BoostLedger

	Pending *PendingAttack

	// sentBattleSetup guards against duplicate BATTLE_SETUP emission
	// (spec.md §4.6: "a flag guards against duplicate emission").
	sentBattleSetup bool
}

// New creates a session in the handshaking phase. Turn ownership starts
// with the host (spec.md §3 invariant: "initial ownership is Host").
func New(role Role) *Session {
	return &Session{
		Role:           role,
		Phase:          PhaseHandshaking,
		IsMyTurn:       role == RoleHost,
		OwnBoosts:      NewBoostLedger(),
		OpponentBoosts: NewBoostLedger(),
	}
}

// CanAttack reports whether an attack intent is currently valid (spec.md
// §4.4: phase = waiting_for_move and is_my_turn = true).
func (s *Session) CanAttack() bool {
	return s.IsMyTurn && s.Phase == PhaseWaitingForMove
}

// MarkBattleSetupSent records that this side has emitted its own
// BATTLE_SETUP, returning false if it already had (caller should not send
// again).
func (s *Session) MarkBattleSetupSent() bool {
	if s.sentBattleSetup {
		return false
	}
	s.sentBattleSetup = true
	return true
}

// BeginAttack transitions into processing_turn and records the pending
// attack (spec.md §4.5 step 1).
func (s *Session) BeginAttack(attacker, defender *battle.Combatant, move battle.Move) {
	s.Phase = PhaseProcessingTurn
	s.Pending = &PendingAttack{Attacker: attacker, Defender: defender, Move: move}
}

// CompleteRound finalizes a round: flips turn ownership, clears the
// pending attack and per-turn boost flags, and returns to waiting_for_move
// (spec.md §4.5: "After a successful round... both sides flip
// is_my_turn, reset phase to waiting_for_move").
func (s *Session) CompleteRound() {
	s.IsMyTurn = !s.IsMyTurn
	s.Phase = PhaseWaitingForMove
	s.Pending = nil
	s.OwnBoosts.ResetTurnFlags()
}

// Terminate unconditionally ends the session (spec.md §4.4: GAME_OVER
// "unconditionally transitions any non-terminated state to terminated").
func (s *Session) Terminate(reason string) {
	if s.Phase == PhaseTerminated {
		return
	}
	s.Phase = PhaseTerminated
	logrus.WithFields(logrus.Fields{
		"role":   s.Role,
		"reason": reason,
	}).Info("session: terminated")
}

// Terminated reports whether the session has ended.
func (s *Session) Terminated() bool {
	return s.Phase == PhaseTerminated
}
