// Package catalogue loads the combatant templates BATTLE_SETUP messages
// reference by name (spec.md §6: "Combatant-catalogue interface";
// original_source/protocol/pokemon_db.py).
package catalogue

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/RedPaladin7/battlelink/internal/battle"
)

// Catalogue maps a lowercase combatant name to its template. BATTLE_SETUP
// lookups always go through Get; an unknown name makes the message
// malformed (spec.md §6).
type Catalogue interface {
	Get(name string) (*battle.Combatant, bool)
}

// Static is an in-memory catalogue built once at load time, keyed on
// lowercase name.
type Static struct {
	byName map[string]*battle.Combatant
}

// Get looks up a template by lowercase name. The returned Combatant is a
// copy, so callers may safely mutate CurrentHP without corrupting the
// shared catalogue entry.
func (s *Static) Get(name string) (*battle.Combatant, bool) {
	tmpl, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	cp := *tmpl
	multipliers := make(map[string]float64, len(tmpl.TypeMultipliers))
	for k, v := range tmpl.TypeMultipliers {
		multipliers[k] = v
	}
	cp.TypeMultipliers = multipliers
	cp.Moves = append([]string(nil), tmpl.Moves...)
	cp.CurrentHP = cp.MaxHP
	return &cp, true
}

// aboutTypePrefix is the CSV column prefix for a type-effectiveness
// multiplier, e.g. "against_fire" (pokemon_db.py's row-key convention).
const aboutTypePrefix = "against_"

// LoadCSV reads a combatant roster from a CSV file shaped like
// original_source's pokemon.csv: name, hp, attack, defense, sp_attack,
// sp_defense, type1, type2, abilities, and one against_<type> column per
// elemental type.
func LoadCSV(path string) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: open %q: %w", path, err)
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) (*Static, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("catalogue: read header: %w", err)
	}
	columnIndex := make(map[string]int, len(header))
	for i, name := range header {
		columnIndex[name] = i
	}

	byName := make(map[string]*battle.Combatant)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalogue: read row: %w", err)
		}
		combatant, err := rowToCombatant(row, columnIndex)
		if err != nil {
			return nil, err
		}
		byName[strings.ToLower(combatant.Name)] = combatant
	}
	return &Static{byName: byName}, nil
}

func rowToCombatant(row []string, columnIndex map[string]int) (*battle.Combatant, error) {
	col := func(name string) string {
		idx, ok := columnIndex[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}
	intCol := func(name string) int {
		v, _ := strconv.ParseFloat(col(name), 64)
		return int(v)
	}

	name := col("name")
	if name == "" {
		return nil, fmt.Errorf("catalogue: row missing name")
	}

	hp := intCol("hp")
	multipliers := make(map[string]float64)
	for column, idx := range columnIndex {
		if !strings.HasPrefix(column, aboutTypePrefix) {
			continue
		}
		elementType := strings.TrimPrefix(column, aboutTypePrefix)
		if idx >= len(row) {
			continue
		}
		value, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			value = 1.0
		}
		multipliers[elementType] = value
	}

	var moves []string
	abilities := col("abilities")
	abilities = strings.NewReplacer("[", "", "]", "", "'", "").Replace(abilities)
	for _, part := range strings.Split(abilities, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			moves = append(moves, part)
		}
	}

	type2 := col("type2")

	return &battle.Combatant{
		Name:            name,
		MaxHP:           hp,
		CurrentHP:       hp,
		Attack:          intCol("attack"),
		SpecialAttack:   intCol("sp_attack"),
		PhysicalDefense: intCol("defense"),
		SpecialDefense:  intCol("sp_defense"),
		Type1:           strings.ToLower(col("type1")),
		Type2:           strings.ToLower(type2),
		TypeMultipliers: multipliers,
		Moves:           moves,
	}, nil
}

// Default returns a small built-in roster so a session can run without an
// external CSV (enough combatants to exercise every invariant in tests and
// ad-hoc play).
func Default() *Static {
	entries := []*battle.Combatant{
		{
			Name: "Pikachu", MaxHP: 100, CurrentHP: 100,
			Attack: 55, SpecialAttack: 90, PhysicalDefense: 40, SpecialDefense: 50,
			Type1: "electric",
			TypeMultipliers: map[string]float64{
				"ground": 2.0, "electric": 0.5, "flying": 0.5, "steel": 0.5,
			},
			Moves: []string{"Thunderbolt", "Quick Attack", "Iron Tail"},
		},
		{
			Name: "Charmander", MaxHP: 80, CurrentHP: 80,
			Attack: 52, SpecialAttack: 60, PhysicalDefense: 43, SpecialDefense: 50,
			Type1: "fire",
			TypeMultipliers: map[string]float64{
				"water": 2.0, "rock": 2.0, "ground": 2.0,
				"fire": 0.5, "grass": 0.5, "ice": 0.5, "bug": 0.5, "steel": 0.5, "fairy": 0.5,
			},
			Moves: []string{"Ember", "Scratch", "Smokescreen"},
		},
		{
			Name: "Squirtle", MaxHP: 90, CurrentHP: 90,
			Attack: 48, SpecialAttack: 50, PhysicalDefense: 65, SpecialDefense: 64,
			Type1: "water",
			TypeMultipliers: map[string]float64{
				"electric": 2.0, "grass": 2.0,
				"fire": 0.5, "water": 0.5, "ice": 0.5, "steel": 0.5,
			},
			Moves: []string{"Water Gun", "Tackle", "Withdraw"},
		},
		{
			Name: "Gengar", MaxHP: 85, CurrentHP: 85,
			Attack: 65, SpecialAttack: 100, PhysicalDefense: 60, SpecialDefense: 75,
			Type1: "ghost", Type2: "poison",
			TypeMultipliers: map[string]float64{
				"ghost": 2.0, "dark": 2.0, "psychic": 0, "normal": 0, "poison": 0.5, "bug": 0.5,
			},
			Moves: []string{"Lick", "Shadow Ball", "Night Shade"},
		},
	}

	byName := make(map[string]*battle.Combatant, len(entries))
	for _, c := range entries {
		byName[strings.ToLower(c.Name)] = c
	}
	return &Static{byName: byName}
}
