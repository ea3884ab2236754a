package combat

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func duelParticipants() []*Participant {
	return []*Participant{
		{ActorID: uuid.New(), Name: "alice", Side: SideAttacker, Health: 100, MaxHealth: 100, Resource: 50, MaxResource: 50, AttackPower: 10, SkillLevel: 3},
		{ActorID: uuid.New(), Name: "bob", Side: SideDefender, Health: 100, MaxHealth: 100, Resource: 50, MaxResource: 50, AttackPower: 10, SkillLevel: 3},
	}
}

func TestNewInstanceRequiresTwoParticipants(t *testing.T) {
	_, err := NewInstance(KindDuel, duelParticipants()[:1])
	if !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("expected ErrIllegalAction, got %v", err)
	}
}

func TestAcceptOnlyFromPending(t *testing.T) {
	inst, err := NewInstance(KindDuel, duelParticipants())
	if err != nil {
		t.Fatal(err)
	}
	if inst.State != StatePending {
		t.Fatalf("expected PENDING, got %s", inst.State)
	}
	if err := inst.Accept(); err != nil {
		t.Fatal(err)
	}
	if err := inst.Accept(); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestValidateRejectsOutOfTurn(t *testing.T) {
	parts := duelParticipants()
	inst, _ := NewInstance(KindDuel, parts)
	_ = inst.Accept()

	target := parts[0].ActorID
	action := &Action{ActorID: parts[1].ActorID, Kind: ActionAttack, TargetID: &target}
	err := inst.Validate(parts[1].ActorID, action)
	if !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	// Rejection must not mutate instance state.
	if inst.Turn != 1 || inst.CurrentTurn != 0 || len(inst.ActionLog) != 0 {
		t.Fatal("rejected action mutated instance state")
	}
}

func TestValidateRejectsInactiveInstance(t *testing.T) {
	parts := duelParticipants()
	inst, _ := NewInstance(KindDuel, parts)

	target := parts[1].ActorID
	action := &Action{ActorID: parts[0].ActorID, Kind: ActionAttack, TargetID: &target}
	if err := inst.Validate(parts[0].ActorID, action); !errors.Is(err, ErrInstanceNotActive) {
		t.Fatalf("expected ErrInstanceNotActive, got %v", err)
	}
}

func TestValidateTargetRules(t *testing.T) {
	parts := duelParticipants()
	inst, _ := NewInstance(KindDuel, parts)
	_ = inst.Accept()
	actor := parts[0]

	tests := []struct {
		name   string
		action *Action
	}{
		{"missing target", &Action{ActorID: actor.ActorID, Kind: ActionAttack}},
		{"unknown target", &Action{ActorID: actor.ActorID, Kind: ActionAttack, TargetID: ptr(uuid.New())}},
		{"friendly target", &Action{ActorID: actor.ActorID, Kind: ActionAttack, TargetID: ptr(actor.ActorID)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := inst.Validate(actor.ActorID, tc.action); !errors.Is(err, ErrIllegalAction) {
				t.Fatalf("expected ErrIllegalAction, got %v", err)
			}
		})
	}
}

func TestValidateDeadTarget(t *testing.T) {
	parts := duelParticipants()
	inst, _ := NewInstance(KindDuel, parts)
	_ = inst.Accept()
	parts[1].Health = 0

	action := &Action{ActorID: parts[0].ActorID, Kind: ActionAttack, TargetID: ptr(parts[1].ActorID)}
	if err := inst.Validate(parts[0].ActorID, action); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("expected ErrIllegalAction, got %v", err)
	}
}

func TestValidateSkillNeedsResource(t *testing.T) {
	parts := duelParticipants()
	parts[0].Resource = SkillCost - 1
	inst, _ := NewInstance(KindDuel, parts)
	_ = inst.Accept()

	action := &Action{ActorID: parts[0].ActorID, Kind: ActionSkill, TargetID: ptr(parts[1].ActorID)}
	if err := inst.Validate(parts[0].ActorID, action); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("expected ErrIllegalAction, got %v", err)
	}
}

func TestAdvanceTurnWrapsAndSkipsDead(t *testing.T) {
	parts := []*Participant{
		{ActorID: uuid.New(), Side: SideRaid, Health: 50},
		{ActorID: uuid.New(), Side: SideRaid, Health: 0},
		{ActorID: uuid.New(), Side: SideBoss, Health: 500},
	}
	inst, _ := NewInstance(KindRaid, parts)
	_ = inst.Accept()

	inst.AdvanceTurn()
	if inst.CurrentTurn != 2 {
		t.Fatalf("expected dead participant skipped, current=%d", inst.CurrentTurn)
	}
	if inst.Turn != 2 {
		t.Fatalf("expected turn counter 2, got %d", inst.Turn)
	}
	inst.AdvanceTurn()
	if inst.CurrentTurn != 0 {
		t.Fatalf("expected wrap to first living, current=%d", inst.CurrentTurn)
	}
}

func TestTurnCounterNeverRegresses(t *testing.T) {
	parts := duelParticipants()
	inst, _ := NewInstance(KindDuel, parts)
	_ = inst.Accept()

	last := inst.Turn
	for i := 0; i < 10; i++ {
		inst.AdvanceTurn()
		if inst.Turn <= last {
			t.Fatalf("turn regressed from %d to %d", last, inst.Turn)
		}
		last = inst.Turn
	}
}

func TestDecided(t *testing.T) {
	parts := duelParticipants()
	inst, _ := NewInstance(KindDuel, parts)
	_ = inst.Accept()

	if _, decided := inst.Decided(); decided {
		t.Fatal("fight decided with both sides alive")
	}
	parts[1].Health = 0
	winner, decided := inst.Decided()
	if !decided || winner != SideAttacker {
		t.Fatalf("expected attacker win, got %q decided=%v", winner, decided)
	}
}

func TestRaidPhaseThresholds(t *testing.T) {
	boss := &Participant{ActorID: uuid.New(), Side: SideBoss, Health: 1000, MaxHealth: 1000}
	parts := []*Participant{
		{ActorID: uuid.New(), Side: SideRaid, Health: 100, MaxHealth: 100},
		boss,
	}
	inst, _ := NewInstance(KindRaid, parts)
	_ = inst.Accept()

	if inst.UpdatePhase() {
		t.Fatal("phase advanced at full boss health")
	}
	boss.Health = 650
	if !inst.UpdatePhase() || inst.Phase != 1 {
		t.Fatalf("expected phase 1, got %d", inst.Phase)
	}
	boss.Health = 300
	if !inst.UpdatePhase() || inst.Phase != 2 {
		t.Fatalf("expected phase 2, got %d", inst.Phase)
	}
	// Phases never regress.
	boss.Health = 900
	if inst.UpdatePhase() || inst.Phase != 2 {
		t.Fatalf("phase regressed to %d", inst.Phase)
	}
}

func TestEnragePhaseDisablesDefend(t *testing.T) {
	boss := &Participant{ActorID: uuid.New(), Side: SideBoss, Health: 1000, MaxHealth: 1000}
	raider := &Participant{ActorID: uuid.New(), Side: SideRaid, Health: 100, MaxHealth: 100, Resource: 50}
	inst, _ := NewInstance(KindRaid, []*Participant{raider, boss})
	_ = inst.Accept()

	if !inst.LegalKind(raider, ActionDefend) {
		t.Fatal("defend should be legal before enrage")
	}
	boss.Health = 100
	inst.UpdatePhase()
	if inst.LegalKind(raider, ActionDefend) {
		t.Fatal("defend should be illegal from the enrage phase")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	parts := duelParticipants()
	inst, _ := NewInstance(KindDuel, parts)
	snap := inst.Snapshot()

	snap.Participants[0].Health = 1
	snap.Turn = 99
	if parts[0].Health != 100 || inst.Turn == 99 {
		t.Fatal("snapshot mutation leaked into live instance")
	}
}

func ptr(id uuid.UUID) *uuid.UUID {
	return &id
}
