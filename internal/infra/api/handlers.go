package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/infra/logging"
	"dispatch-bot/internal/usecase"
)

// PlanView is the JSON shape of an executor plan.
type PlanView struct {
	ID            int64            `json:"id"`
	ChatID        int64            `json:"chatId"`
	ThreadID      *int             `json:"threadId,omitempty"`
	Phone         string           `json:"phone"`
	Nickname      *string          `json:"nickname,omitempty"`
	PlanChoice    model.PlanChoice `json:"planChoice"`
	StartAt       time.Time        `json:"startAt"`
	EndsAt        time.Time        `json:"endsAt"`
	Comment       *string          `json:"comment,omitempty"`
	Status        model.PlanStatus `json:"status"`
	Muted         bool             `json:"muted"`
	ReminderIndex int              `json:"reminderIndex"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

func toPlanView(p *model.ExecutorPlan) *PlanView {
	if p == nil {
		return nil
	}
	return &PlanView{
		ID:            p.ID,
		ChatID:        p.ChatID,
		ThreadID:      p.ThreadID,
		Phone:         p.Phone,
		Nickname:      p.Nickname,
		PlanChoice:    p.PlanChoice,
		StartAt:       p.StartAt,
		EndsAt:        p.EndsAt,
		Comment:       p.Comment,
		Status:        p.Status,
		Muted:         p.Muted,
		ReminderIndex: p.ReminderIndex,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// ResultView is the JSON shape of a submitted mutation.
type ResultView struct {
	Outcome           string    `json:"outcome"`
	Queued            bool      `json:"queued"`
	PlanID            int64     `json:"planId,omitempty"`
	Plan              *PlanView `json:"plan,omitempty"`
	RemindersDisabled bool      `json:"remindersDisabled,omitempty"`
}

type BacklogView struct {
	Applied   int   `json:"applied"`
	Remaining int64 `json:"remaining"`
}

type extendRequest struct {
	Days int `json:"days"`
}

type statusRequest struct {
	Status model.PlanStatus `json:"status"`
	Reason *string          `json:"reason,omitempty"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

type startRequest struct {
	StartAt time.Time `json:"startAt"`
}

type commentRequest struct {
	Comment *string `json:"comment"`
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var in model.PlanInsertInput
	if !decodeBody(w, r, &in) {
		return
	}
	if in.StartAt.IsZero() {
		in.StartAt = s.now().UTC()
	}
	s.submit(w, r, model.CreatePlan{Input: in})
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	p, err := s.plans.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanView(p))
}

func (s *Server) deletePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	s.submit(w, r, model.DeletePlan{ID: id})
}

func (s *Server) extendPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	var req extendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.submit(w, r, model.ExtendPlan{ID: id, Days: req.Days})
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.submit(w, r, model.SetPlanStatus{ID: id, Status: req.Status, Reason: req.Reason})
}

func (s *Server) mutePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	var req muteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.submit(w, r, model.MutePlan{ID: id, Muted: req.Muted})
}

func (s *Server) setStart(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.submit(w, r, model.SetPlanStart{ID: id, StartAt: req.StartAt.UTC()})
}

func (s *Server) commentPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := planID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.submit(w, r, model.CommentPlan{ID: id, Comment: req.Comment})
}

func (s *Server) flushBacklog(w http.ResponseWriter, r *http.Request) {
	applied, remaining, err := s.plans.FlushBacklog(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BacklogView{Applied: applied, Remaining: remaining})
}

func (s *Server) backlogDepth(w http.ResponseWriter, r *http.Request) {
	n, err := s.plans.BacklogDepth(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BacklogView{Remaining: n})
}

// submit runs m and maps the result: 201 created, 202 queued, 404 when the
// target plan is gone, 200 otherwise.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, m model.Mutation) {
	ctx := r.Context()
	if id := model.TargetID(m); id != 0 {
		ctx = logging.WithPlanID(ctx, id)
	}
	res, err := s.plans.Submit(ctx, m)
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	writeResult(w, res)
}

func writeResult(w http.ResponseWriter, res *usecase.CommandResult) {
	switch {
	case res.Queued:
		writeJSON(w, http.StatusAccepted, ResultView{Outcome: model.OutcomeNone.String(), Queued: true})
	case res.NotFound():
		writeError(w, http.StatusNotFound, "plan not found")
	default:
		status := http.StatusOK
		if res.Outcome.Kind == model.OutcomeCreated {
			status = http.StatusCreated
		}
		writeJSON(w, status, ResultView{
			Outcome:           res.Outcome.Kind.String(),
			PlanID:            res.Outcome.PlanID,
			Plan:              toPlanView(res.Outcome.Plan),
			RemindersDisabled: res.RemindersDisabled,
		})
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "plan not found")
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownMutation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("admin request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func planID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(chi.URLParam(r, "id"), "#"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid plan id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
