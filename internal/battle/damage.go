package battle

import (
	"fmt"
	"math"
	"strings"
)

// Category distinguishes physical-stat-driven moves from special-stat-driven
// ones (spec.md §4.5).
type Category string

const (
	Physical Category = "physical"
	Special  Category = "special"
)

// physicalTypes are the elemental tags whose moves draw on Attack/Physical
// Defense rather than Special Attack/Special Defense.
var physicalTypes = map[string]struct{}{
	"normal": {}, "fighting": {}, "flying": {}, "poison": {}, "ground": {},
	"rock": {}, "bug": {}, "ghost": {}, "steel": {},
}

// CategoryOf returns the damage category for an elemental type tag,
// defaulting to Special for anything outside the physical set (spec.md
// §4.5's partition is exhaustive over the 18-type taxonomy, but any future
// unrecognized tag still needs a category to fall back to).
func CategoryOf(elementType string) Category {
	if _, ok := physicalTypes[strings.ToLower(elementType)]; ok {
		return Physical
	}
	return Special
}

// MoveFromAttackerType builds a Move whose category is derived from the
// attacker's primary type, per spec.md §9's preserved (if unusual) wire
// compatibility rule: category comes from the attacker's type tag, not the
// move's own element.
func MoveFromAttackerType(moveName string, attacker *Combatant) Move {
	elementType := strings.ToLower(attacker.Type1)
	return Move{
		Name:        moveName,
		ElementType: elementType,
		BasePower:   1,
	}
}

// CalculateDamage is the pure, deterministic damage function (spec.md §4.5).
// attackBoostApplied/defenseBoostApplied select the 1.5x multiplier for the
// attacker's or defender's stat this round.
func CalculateDamage(state BattleState, move Move, attackBoostApplied, defenseBoostApplied bool) int {
	category := CategoryOf(move.ElementType)

	var atk, def float64
	if category == Physical {
		atk = float64(state.Attacker.Attack)
		def = float64(state.Defender.PhysicalDefense)
	} else {
		atk = float64(state.Attacker.SpecialAttack)
		def = float64(state.Defender.SpecialDefense)
	}

	if attackBoostApplied {
		atk *= 1.5
	}
	if defenseBoostApplied {
		def *= 1.5
	}
	if def <= 0 {
		def = 1
	}

	mult := TypeMultiplier(state.Defender, move.ElementType)
	raw := (atk * mult) / def
	dmg := int(math.RoundToEven(raw))

	if dmg <= 0 && mult > 0 {
		dmg = 1
	}
	return dmg
}

// TypeMultiplier looks up the defender's effectiveness against an attacking
// type tag, defaulting to 1.0 (normal effectiveness) when absent.
func TypeMultiplier(defender *Combatant, elementType string) float64 {
	if defender.TypeMultipliers == nil {
		return 1.0
	}
	if mult, ok := defender.TypeMultipliers[strings.ToLower(elementType)]; ok {
		return mult
	}
	return 1.0
}

// GenerateStatusMessage derives the narrative line from the type
// multiplier (spec.md §4.5).
func GenerateStatusMessage(attackerName, moveName string, typeMultiplier float64) string {
	base := fmt.Sprintf("%s used %s!", attackerName, moveName)
	switch {
	case typeMultiplier == 0:
		return base + " It had no effect..."
	case typeMultiplier < 1:
		return base + " It's not very effective..."
	case typeMultiplier > 1:
		return base + " It was super effective!"
	default:
		return base
	}
}
