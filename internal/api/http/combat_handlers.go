package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arena-hub/arena-hub/internal/application/engine"
	"github.com/arena-hub/arena-hub/internal/domain/combat"
)

type participantRequest struct {
	ActorID     uuid.UUID   `json:"actorId"`
	Name        string      `json:"name"`
	Side        combat.Side `json:"side"`
	Health      int         `json:"health"`
	Resource    int         `json:"resource"`
	AttackPower int         `json:"attackPower"`
	Defense     int         `json:"defense"`
	SkillLevel  int         `json:"skillLevel"`
	AutoCombat  bool        `json:"autoCombat"`
}

func (p participantRequest) toDomain() *combat.Participant {
	return &combat.Participant{
		ActorID:     p.ActorID,
		Name:        p.Name,
		Side:        p.Side,
		Health:      p.Health,
		MaxHealth:   p.Health,
		Resource:    p.Resource,
		MaxResource: p.Resource,
		AttackPower: p.AttackPower,
		Defense:     p.Defense,
		SkillLevel:  p.SkillLevel,
		AutoCombat:  p.AutoCombat,
	}
}

type createInstanceRequest struct {
	Kind         combat.Kind          `json:"kind"`
	Participants []participantRequest `json:"participants"`
}

func (s *Server) createInstance(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body")
		return
	}
	participants := make([]*combat.Participant, 0, len(req.Participants))
	for _, p := range req.Participants {
		participants = append(participants, p.toDomain())
	}
	inst, err := s.engine.CreateInstance(r.Context(), req.Kind, participants)
	if err != nil {
		respondError(w, http.StatusBadRequest, "ILLEGAL_ACTION", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, inst)
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "instanceId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid instance id")
		return
	}
	inst, err := s.engine.Instance(instanceID)
	if err != nil && s.archive != nil {
		inst, err = s.archive.GetInstance(r.Context(), instanceID)
		if err == nil && inst == nil {
			err = engine.ErrInstanceNotFound
		}
	}
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "instance not found")
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

func (s *Server) acceptInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "instanceId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid instance id")
		return
	}
	if err := s.engine.Accept(r.Context(), instanceID); err != nil {
		switch {
		case errors.Is(err, engine.ErrInstanceNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", "instance not found")
		case errors.Is(err, combat.ErrNotPending):
			respondError(w, http.StatusConflict, "NOT_PENDING", "instance already started")
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// joinInstance admits the authenticated actor into a raid. Capacity
// admission is owned by the supervisor.
func (s *Server) joinInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "instanceId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid instance id")
		return
	}
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body")
		return
	}
	if ident := identityFromContext(r.Context()); ident != nil {
		req.ActorID = ident.ActorID
		if req.Name == "" {
			req.Name = ident.Name
		}
	}
	if err := s.supervisor.Join(instanceID, req.toDomain()); err != nil {
		switch {
		case errors.Is(err, combat.ErrInstanceFull):
			respondError(w, http.StatusConflict, "INSTANCE_FULL", "raid is at capacity")
		case errors.Is(err, engine.ErrInstanceNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", "instance not found")
		default:
			respondError(w, http.StatusBadRequest, "ILLEGAL_ACTION", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}
