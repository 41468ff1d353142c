// Package battle implements the combatant model and the pure damage
// function the attack-round protocol drives both peers to compute
// independently (spec.md §4.5).
package battle

// Combatant is the mutable game-piece entity held by a Host or Joiner.
type Combatant struct {
	Name string

	MaxHP     int
	CurrentHP int

	Attack           int
	SpecialAttack    int
	PhysicalDefense  int
	SpecialDefense   int

	Type1 string
	Type2 string

	// TypeMultipliers maps an attacking-type tag (lowercase) to this
	// combatant's effectiveness against it.
	TypeMultipliers map[string]float64

	Moves []string
}

// Fainted reports whether this combatant's HP has reached zero.
func (c *Combatant) Fainted() bool {
	return c.CurrentHP <= 0
}

// ApplyDamage reduces CurrentHP by damage, clamped at zero (spec.md §3
// invariant: current_hp ≥ 0).
func (c *Combatant) ApplyDamage(damage int) {
	newHP := c.CurrentHP - damage
	if newHP < 0 {
		newHP = 0
	}
	c.CurrentHP = newHP
}

// Move is the act applied in an attack round.
type Move struct {
	Name string

	// ElementType is drawn from the same type taxonomy as Combatant.Type1.
	ElementType string

	// BasePower is kept for extensibility but is not consulted by
	// CalculateDamage (spec.md §9 open question: preserved, reserved).
	BasePower int
}

// BattleState is the (attacker, defender) snapshot pair constructed per
// attack round; it does not outlive the round.
type BattleState struct {
	Attacker *Combatant
	Defender *Combatant
}
