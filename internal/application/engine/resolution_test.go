package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena-hub/arena-hub/internal/domain/combat"
)

func TestActionSeedDeterministic(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, ActionSeed(id, 7), ActionSeed(id, 7))
	assert.NotEqual(t, ActionSeed(id, 7), ActionSeed(id, 8))
	assert.NotEqual(t, ActionSeed(id, 7), ActionSeed(uuid.New(), 7))
}

func TestRollRangeAndDeterminism(t *testing.T) {
	for turn := 1; turn <= 100; turn++ {
		seed := ActionSeed(uuid.New(), turn)
		roll := Roll(seed)
		if roll < 1 || roll > rollSides {
			t.Fatalf("roll %d out of range", roll)
		}
		assert.Equal(t, roll, Roll(seed))
	}
}

func TestNewFormulaPolicyRejectsGarbage(t *testing.T) {
	_, err := NewFormulaPolicy("attack +* defense", 1)
	assert.Error(t, err)
}

func TestNewFormulaPolicyDefault(t *testing.T) {
	policy, err := NewFormulaPolicy("", 1)
	require.NoError(t, err)

	attacker := &combat.Participant{AttackPower: 10, SkillLevel: 3}
	target := &combat.Participant{Defense: 5}
	// attack + skill*2 + roll - defense = 10 + 6 + 4 - 5
	assert.Equal(t, 15, policy.Damage(attacker, target, combat.ActionAttack, 4, 1))
}

func TestDamageModifiers(t *testing.T) {
	policy, err := NewFormulaPolicy("attack", 1)
	require.NoError(t, err)

	attacker := &combat.Participant{AttackPower: 20}
	target := &combat.Participant{}

	tests := []struct {
		name  string
		setup func(a, d *combat.Participant)
		kind  combat.ActionKind
		want  int
	}{
		{"plain attack", func(a, d *combat.Participant) {}, combat.ActionAttack, 20},
		{"skill multiplies", func(a, d *combat.Participant) {}, combat.ActionSkill, 30},
		{"defend deals nothing", func(a, d *combat.Participant) {}, combat.ActionDefend, 0},
		{"pass deals nothing", func(a, d *combat.Participant) {}, combat.ActionPass, 0},
		{"weakened attacker", func(a, d *combat.Participant) {
			a.ApplyEffect(combat.EffectWeakened, 10)
		}, combat.ActionAttack, 15},
		{"enraged attacker", func(a, d *combat.Participant) {
			a.ApplyEffect(combat.EffectEnraged, 10)
		}, combat.ActionAttack, 40},
		{"defending target", func(a, d *combat.Participant) {
			d.ApplyEffect(combat.EffectDefending, 10)
		}, combat.ActionAttack, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := attacker.Clone()
			d := target.Clone()
			tc.setup(a, d)
			assert.Equal(t, tc.want, policy.Damage(a, d, tc.kind, 3, 1))
		})
	}
}

func TestDamageNeverNegative(t *testing.T) {
	policy, err := NewFormulaPolicy(DefaultFormula, 1)
	require.NoError(t, err)

	attacker := &combat.Participant{AttackPower: 1, SkillLevel: 0}
	target := &combat.Participant{Defense: 100}
	assert.Equal(t, 0, policy.Damage(attacker, target, combat.ActionAttack, 1, 1))
}

func TestEvaluateFallsBackOnBrokenPolicy(t *testing.T) {
	// Parses fine but evaluates to a non-number.
	policy, err := NewFormulaPolicy("attack > defense", 1)
	require.NoError(t, err)

	attacker := &combat.Participant{AttackPower: 10, SkillLevel: 2}
	target := &combat.Participant{Defense: 3}
	// Fallback formula: 10 + 4 + 5 - 3.
	assert.Equal(t, 16, policy.Damage(attacker, target, combat.ActionAttack, 5, 1))
}
