package model

import (
	"encoding/json"
	"fmt"
	"time"

	"dispatch-bot/internal/domain"
)

// MutationType is the wire tag of a queued mutation.
type MutationType string

const (
	MutationCreate    MutationType = "create"
	MutationExtend    MutationType = "extend"
	MutationSetStatus MutationType = "set-status"
	MutationMute      MutationType = "mute"
	MutationSetStart  MutationType = "set-start"
	MutationComment   MutationType = "comment"
	MutationDelete    MutationType = "delete"
)

// Mutation is an immutable command describing one state change to a plan.
// The set of implementations is closed: only the types in this file satisfy it.
type Mutation interface {
	Type() MutationType
	isMutation()
}

type CreatePlan struct {
	Input PlanInsertInput
}

type ExtendPlan struct {
	ID   int64 `json:"id"`
	Days int   `json:"days"`
}

type SetPlanStatus struct {
	ID     int64      `json:"id"`
	Status PlanStatus `json:"status"`
	Reason *string    `json:"reason,omitempty"`
}

type MutePlan struct {
	ID    int64 `json:"id"`
	Muted bool  `json:"muted"`
}

type SetPlanStart struct {
	ID      int64     `json:"id"`
	StartAt time.Time `json:"startAt"`
}

type CommentPlan struct {
	ID      int64   `json:"id"`
	Comment *string `json:"comment"`
}

type DeletePlan struct {
	ID int64 `json:"id"`
}

func (CreatePlan) Type() MutationType    { return MutationCreate }
func (ExtendPlan) Type() MutationType    { return MutationExtend }
func (SetPlanStatus) Type() MutationType { return MutationSetStatus }
func (MutePlan) Type() MutationType      { return MutationMute }
func (SetPlanStart) Type() MutationType  { return MutationSetStart }
func (CommentPlan) Type() MutationType   { return MutationComment }
func (DeletePlan) Type() MutationType    { return MutationDelete }

func (CreatePlan) isMutation()    {}
func (ExtendPlan) isMutation()    {}
func (SetPlanStatus) isMutation() {}
func (MutePlan) isMutation()      {}
func (SetPlanStart) isMutation()  {}
func (CommentPlan) isMutation()   {}
func (DeletePlan) isMutation()    {}

// TargetID returns the plan id a mutation addresses, or 0 for create.
func TargetID(m Mutation) int64 {
	switch v := m.(type) {
	case ExtendPlan:
		return v.ID
	case SetPlanStatus:
		return v.ID
	case MutePlan:
		return v.ID
	case SetPlanStart:
		return v.ID
	case CommentPlan:
		return v.ID
	case DeletePlan:
		return v.ID
	}
	return 0
}

type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeCreated
	OutcomeUpdated
	OutcomeDeleted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDeleted:
		return "deleted"
	}
	return "none"
}

// MutationOutcome is the result of applying a mutation. Plan is set for
// created/updated, PlanID for every kind except none.
type MutationOutcome struct {
	Kind   OutcomeKind
	Plan   *ExecutorPlan
	PlanID int64
}

func Created(p *ExecutorPlan) *MutationOutcome {
	return &MutationOutcome{Kind: OutcomeCreated, Plan: p, PlanID: p.ID}
}

func Updated(p *ExecutorPlan) *MutationOutcome {
	return &MutationOutcome{Kind: OutcomeUpdated, Plan: p, PlanID: p.ID}
}

func Deleted(id int64) *MutationOutcome {
	return &MutationOutcome{Kind: OutcomeDeleted, PlanID: id}
}

// ---- wire format ----

type mutationEnvelope struct {
	Type    MutationType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalMutation encodes m as {"type": ..., "payload": {...}}.
func MarshalMutation(m Mutation) ([]byte, error) {
	if m == nil {
		return nil, domain.ErrInvalidArgument
	}
	var payload any
	switch v := m.(type) {
	case CreatePlan:
		payload = v.Input
	case ExtendPlan, SetPlanStatus, MutePlan, SetPlanStart, CommentPlan, DeletePlan:
		payload = v
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownMutation, m)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(mutationEnvelope{Type: m.Type(), Payload: raw})
}

// UnmarshalMutation decodes a record produced by MarshalMutation.
func UnmarshalMutation(data []byte) (Mutation, error) {
	var env mutationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode mutation: %w", err)
	}
	switch env.Type {
	case MutationCreate:
		var in PlanInsertInput
		if err := json.Unmarshal(env.Payload, &in); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		return CreatePlan{Input: in}, nil
	case MutationExtend:
		return decodePayload[ExtendPlan](env)
	case MutationSetStatus:
		return decodePayload[SetPlanStatus](env)
	case MutationMute:
		return decodePayload[MutePlan](env)
	case MutationSetStart:
		return decodePayload[SetPlanStart](env)
	case MutationComment:
		return decodePayload[CommentPlan](env)
	case MutationDelete:
		return decodePayload[DeletePlan](env)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMutation, env.Type)
}

func decodePayload[T Mutation](env mutationEnvelope) (Mutation, error) {
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return v, nil
}
