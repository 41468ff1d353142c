package dispatch

import (
	"testing"

	"github.com/RedPaladin7/battlelink/internal/battle"
	"github.com/RedPaladin7/battlelink/internal/catalogue"
	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/session"
)

// fixedCatalogue lets tests hand-construct exact stat lines (spec.md §8
// Scenario 1) instead of relying on the built-in roster's numbers.
type fixedCatalogue struct {
	entries map[string]*battle.Combatant
}

func (f *fixedCatalogue) Get(name string) (*battle.Combatant, bool) {
	tmpl, ok := f.entries[name]
	if !ok {
		return nil, false
	}
	cp := *tmpl
	multipliers := make(map[string]float64, len(tmpl.TypeMultipliers))
	for k, v := range tmpl.TypeMultipliers {
		multipliers[k] = v
	}
	cp.TypeMultipliers = multipliers
	return &cp, true
}

func scenario1Catalogue() *fixedCatalogue {
	return &fixedCatalogue{entries: map[string]*battle.Combatant{
		"hostmon": {
			Name: "Hostmon", MaxHP: 100, CurrentHP: 100,
			Attack: 100, SpecialAttack: 100, PhysicalDefense: 50, SpecialDefense: 10,
			Type1: "fire",
		},
		"joinermon": {
			Name: "Joinermon", MaxHP: 40, CurrentHP: 20,
			PhysicalDefense: 10, SpecialDefense: 10,
			TypeMultipliers: map[string]float64{"fire": 2.0},
		},
	}}
}

func setUpBattle(t *testing.T) (host, joiner *Engine) {
	t.Helper()
	cat := scenario1Catalogue()

	var err error
	host, err = New(session.RoleHost, cat, "hostmon", protocol.ModeP2P)
	if err != nil {
		t.Fatalf("new host engine: %v", err)
	}
	joiner, err = New(session.RoleJoiner, cat, "joinermon", protocol.ModeP2P)
	if err != nil {
		t.Fatalf("new joiner engine: %v", err)
	}

	// Handshake: joiner sends HANDSHAKE_REQUEST; host (on interactive
	// approval, simulated here) replies with HANDSHAKE_RESPONSE.
	if _, _, err := host.Dispatch(protocol.BuildHandshakeRequest()); err != nil {
		t.Fatalf("host dispatch handshake request: %v", err)
	}

	hsResp := protocol.BuildHandshakeResponse(12345)
	responses, _, err := joiner.Dispatch(hsResp)
	if err != nil || len(responses) != 1 {
		t.Fatalf("joiner dispatch handshake response: responses=%v err=%v", responses, err)
	}
	joinerSetup := responses[0]

	responses, _, err = host.Dispatch(joinerSetup)
	if err != nil || len(responses) != 1 {
		t.Fatalf("host dispatch battle setup: responses=%v err=%v", responses, err)
	}
	hostSetup := responses[0]

	if _, _, err := joiner.Dispatch(hostSetup); err != nil {
		t.Fatalf("joiner dispatch host's battle setup: %v", err)
	}

	if host.Session.Phase != session.PhaseWaitingForMove {
		t.Fatalf("expected host to reach waiting_for_move, got %s", host.Session.Phase)
	}
	if joiner.Session.Phase != session.PhaseWaitingForMove {
		t.Fatalf("expected joiner to reach waiting_for_move, got %s", joiner.Session.Phase)
	}
	if !host.Session.IsMyTurn {
		t.Fatalf("expected host to hold the first turn")
	}
	return host, joiner
}

func TestHappyPathOneShotKO(t *testing.T) {
	host, joiner := setUpBattle(t)

	attackMsg, err := host.Attack("Ember", false)
	if err != nil {
		t.Fatalf("host attack: %v", err)
	}

	joinerResponses, terminated, err := joiner.Dispatch(attackMsg)
	if err != nil {
		t.Fatalf("joiner dispatch attack_announce: %v", err)
	}
	if terminated {
		t.Fatalf("should not be terminated yet")
	}
	if len(joinerResponses) != 2 {
		t.Fatalf("expected [DEFENSE_ANNOUNCE, CALCULATION_REPORT], got %d messages", len(joinerResponses))
	}
	defenseAnnounce, joinerReport := joinerResponses[0], joinerResponses[1]
	if defenseAnnounce.Type() != protocol.DefenseAnnounce.String() {
		t.Fatalf("expected DEFENSE_ANNOUNCE first, got %s", defenseAnnounce.Type())
	}

	hostResponses, terminated, err := host.Dispatch(defenseAnnounce)
	if err != nil {
		t.Fatalf("host dispatch defense_announce: %v", err)
	}
	if terminated {
		t.Fatalf("should not be terminated yet")
	}
	if len(hostResponses) != 1 {
		t.Fatalf("expected [CALCULATION_REPORT], got %d", len(hostResponses))
	}
	hostReport := hostResponses[0]

	fields, err := protocol.ParseCalculationReport(hostReport)
	if err != nil {
		t.Fatalf("parse host report: %v", err)
	}
	if fields.DamageDealt != 20 {
		t.Fatalf("expected damage 20 per spec.md Scenario 1, got %d", fields.DamageDealt)
	}
	if fields.DefenderHPRemaining != 0 {
		t.Fatalf("expected remaining hp 0 (one-shot KO), got %d", fields.DefenderHPRemaining)
	}

	// Each side independently notices the defender fainted as soon as it
	// sees the other side's matching report, and emits GAME_OVER right
	// there rather than waiting on a round-trip CALCULATION_CONFIRM
	// (original_source's handle_calculation_report returns the game-over
	// message immediately when hp_remaining <= 0).
	hostFinal, terminated, err := host.Dispatch(joinerReport)
	if err != nil {
		t.Fatalf("host dispatch joiner's report: %v", err)
	}
	if !terminated {
		t.Fatalf("expected host to terminate: defender fainted")
	}
	if len(hostFinal) != 2 || hostFinal[0].Type() != protocol.CalculationConfirm.String() || hostFinal[1].Type() != protocol.GameOver.String() {
		t.Fatalf("expected [CALCULATION_CONFIRM, GAME_OVER], got %+v", hostFinal)
	}
	if host.Session.Opponent.CurrentHP != 0 {
		t.Fatalf("expected host's view of joinermon to be at 0 hp, got %d", host.Session.Opponent.CurrentHP)
	}

	joinerFinal, terminated, err := joiner.Dispatch(hostReport)
	if err != nil {
		t.Fatalf("joiner dispatch host's report: %v", err)
	}
	if !terminated {
		t.Fatalf("expected joiner to terminate: defender fainted")
	}
	if len(joinerFinal) != 2 || joinerFinal[1].Type() != protocol.GameOver.String() {
		t.Fatalf("expected [CALCULATION_CONFIRM, GAME_OVER], got %+v", joinerFinal)
	}
	result := protocol.ParseGameOver(joinerFinal[1])
	if result.Winner != "Hostmon" || result.Loser != "Joinermon" {
		t.Fatalf("unexpected game over result: %+v", result)
	}
	if joiner.Session.Self.CurrentHP != 0 {
		t.Fatalf("expected joinermon's stored hp to be 0, got %d", joiner.Session.Self.CurrentHP)
	}
}

func TestAttackRejectedWhenNotYourTurn(t *testing.T) {
	_, joiner := setUpBattle(t)
	_, err := joiner.Attack("Tackle", false)
	if err != ErrNotYourTurn {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
}

func TestAttackRejectedWithNoBoostsRemaining(t *testing.T) {
	host, _ := setUpBattle(t)
	host.Session.OwnBoosts.AttackUsesRemaining = 0
	_, err := host.Attack("Ember", true)
	if err != ErrNoBoostsRemaining {
		t.Fatalf("expected ErrNoBoostsRemaining, got %v", err)
	}
}

func TestCalculationMismatchTriggersResolutionRequest(t *testing.T) {
	host, joiner := setUpBattle(t)

	attackMsg, err := host.Attack("Ember", false)
	if err != nil {
		t.Fatalf("host attack: %v", err)
	}
	joinerResponses, _, err := joiner.Dispatch(attackMsg)
	if err != nil {
		t.Fatalf("joiner dispatch attack: %v", err)
	}
	defenseAnnounce := joinerResponses[0]

	hostResponses, _, err := host.Dispatch(defenseAnnounce)
	if err != nil {
		t.Fatalf("host dispatch defense: %v", err)
	}
	hostReport := hostResponses[0]

	// Corrupt the joiner's own pending calculation to force a mismatch.
	joiner.Session.Pending.DamageDealt = 999
	joiner.Session.Pending.DefenderHPRemaining = 0

	responses, terminated, err := joiner.Dispatch(hostReport)
	if err != nil {
		t.Fatalf("joiner dispatch host report: %v", err)
	}
	if terminated {
		t.Fatalf("mismatch is not itself terminal")
	}
	if len(responses) != 1 || responses[0].Type() != protocol.ResolutionRequest.String() {
		t.Fatalf("expected RESOLUTION_REQUEST, got %+v", responses)
	}
}

func TestDuplicateAttackAnnounceIsHandledIdempotently(t *testing.T) {
	host, joiner := setUpBattle(t)
	attackMsg, err := host.Attack("Ember", false)
	if err != nil {
		t.Fatalf("host attack: %v", err)
	}

	first, _, err := joiner.Dispatch(attackMsg)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, _, err := joiner.Dispatch(attackMsg)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected both dispatches to produce the same shape of response")
	}
	if joiner.Session.Pending == nil {
		t.Fatalf("expected a pending attack to still be recorded")
	}
}

func TestArmDefenseBoostAppliesOnNextAttack(t *testing.T) {
	host, joiner := setUpBattle(t)
	if err := joiner.ArmDefenseBoost(); err != nil {
		t.Fatalf("arm defense boost: %v", err)
	}
	before := joiner.Session.OwnBoosts.DefenseUsesRemaining

	attackMsg, err := host.Attack("Ember", false)
	if err != nil {
		t.Fatalf("host attack: %v", err)
	}
	if _, _, err := joiner.Dispatch(attackMsg); err != nil {
		t.Fatalf("joiner dispatch: %v", err)
	}

	if joiner.Session.OwnBoosts.DefenseUsesRemaining != before-1 {
		t.Fatalf("expected armed boost to be consumed, remaining=%d", joiner.Session.OwnBoosts.DefenseUsesRemaining)
	}
	if !joiner.Session.OwnBoosts.DefenseBoostAppliedThisTurn {
		t.Fatalf("expected defense-boost-applied flag to be set")
	}
}

func TestChatMessageIsAppendedToLog(t *testing.T) {
	_, joiner := setUpBattle(t)
	chat := protocol.BuildChatText("Hostmon's trainer", "gg")
	responses, terminated, err := joiner.Dispatch(chat)
	if err != nil {
		t.Fatalf("dispatch chat: %v", err)
	}
	if terminated || len(responses) != 0 {
		t.Fatalf("chat should not produce responses or terminate")
	}
	if len(joiner.ChatLog) != 1 || joiner.ChatLog[0].Text != "gg" {
		t.Fatalf("expected chat log to record the message, got %+v", joiner.ChatLog)
	}
}

func TestNewRejectsUnknownCombatant(t *testing.T) {
	_, err := New(session.RoleHost, catalogue.Default(), "not-a-real-pokemon", protocol.ModeP2P)
	if err == nil {
		t.Fatalf("expected an error constructing an engine with an unknown combatant")
	}
}
