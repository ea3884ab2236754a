package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arena-hub/arena-hub/internal/domain/combat"
)

// CombatRepository implements combat.ArchiveRepository.
type CombatRepository struct {
	pool *pgxpool.Pool
}

func NewCombatRepository(pool *pgxpool.Pool) *CombatRepository {
	return &CombatRepository{pool: pool}
}

func (r *CombatRepository) SaveInstance(ctx context.Context, inst *combat.Instance) error {
	participants, err := json.Marshal(inst.Participants)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO combat_instances
		(instance_id, kind, state, phase, turns, winner_side, participants, created_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (instance_id) DO UPDATE SET
			state = EXCLUDED.state,
			phase = EXCLUDED.phase,
			turns = EXCLUDED.turns,
			winner_side = EXCLUDED.winner_side,
			participants = EXCLUDED.participants,
			ended_at = EXCLUDED.ended_at
	`, inst.ID, inst.Kind, inst.State, inst.Phase, inst.Turn, inst.WinnerSide, participants, inst.CreatedAt, inst.EndedAt)
	return err
}

func (r *CombatRepository) SaveLog(ctx context.Context, instanceID uuid.UUID, entries []combat.LogEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO combat_actions
			(instance_id, turn, actor_id, kind, target_id, seed, roll, damage, timeout, resolved_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (instance_id, turn) DO NOTHING
		`, instanceID, e.Turn, e.ActorID, e.Kind, e.TargetID, e.Seed, e.Roll, e.Damage, e.Timeout, e.ResolvedAt)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *CombatRepository) GetInstance(ctx context.Context, instanceID uuid.UUID) (*combat.Instance, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT instance_id, kind, state, phase, turns, winner_side, participants, created_at, ended_at
		FROM combat_instances WHERE instance_id=$1
	`, instanceID)

	var inst combat.Instance
	var participants []byte
	if err := row.Scan(&inst.ID, &inst.Kind, &inst.State, &inst.Phase, &inst.Turn, &inst.WinnerSide, &participants, &inst.CreatedAt, &inst.EndedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(participants, &inst.Participants); err != nil {
		return nil, err
	}
	return &inst, nil
}
