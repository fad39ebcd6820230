package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RecommendationInvestment          RecommendationKind = "investment"
	RecommendationExpenseOptimization RecommendationKind = "expense_optimization"
	RecommendationGoalAdjustment      RecommendationKind = "goal_adjustment"
	RecommendationBudgetAlert         RecommendationKind = "budget_alert"
)

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type (
	RecommendationKind string
	Priority           string

	// RecommendationPayload is the kind-specific part of a Recommendation.
	// Only the types in this file implement it.
	RecommendationPayload interface {
		Kind() RecommendationKind
		isRecommendationPayload()
	}

	InvestmentAdvice struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Action string `json:"action"` // BUY, HOLD, SELL
		Reason string `json:"reason"`
	}

	ExpenseOptimization struct {
		Category       string          `json:"category"`
		CurrentMonthly decimal.Decimal `json:"current_monthly"`
		SuggestedLimit decimal.Decimal `json:"suggested_limit"`
	}

	GoalAdjustment struct {
		GoalID          string          `json:"goal_id"`
		NewTargetAmount decimal.Decimal `json:"new_target_amount"`
		NewTargetDate   time.Time       `json:"new_target_date"`
	}

	BudgetAlert struct {
		Month    string          `json:"month"` // YYYY-MM
		Category string          `json:"category"`
		Budgeted decimal.Decimal `json:"budgeted"`
		Spent    decimal.Decimal `json:"spent"`
	}

	Recommendation struct {
		ID             string
		UserID         string
		Title          string
		Description    string
		Confidence     float64 // 0..1
		Priority       Priority
		ActionRequired bool
		Payload        RecommendationPayload
		IsRead         bool
		ExpiresAt      *time.Time
		CreatedAt      time.Time
	}
)

var (
	ErrUnknownRecommendationKind = errors.New("unknown recommendation kind")
	ErrInvalidRecommendation     = errors.New("invalid recommendation")
)

// Validate checks the fields every stored recommendation needs.
func (r Recommendation) Validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRecommendation)
	case r.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidRecommendation)
	case r.Payload == nil:
		return fmt.Errorf("%w: payload is required", ErrInvalidRecommendation)
	case r.Confidence < 0 || r.Confidence > 1:
		return fmt.Errorf("%w: confidence %v outside 0..1", ErrInvalidRecommendation, r.Confidence)
	}
	switch r.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return nil
	}
	return fmt.Errorf("%w: unknown priority %q", ErrInvalidRecommendation, r.Priority)
}

func (InvestmentAdvice) Kind() RecommendationKind    { return RecommendationInvestment }
func (ExpenseOptimization) Kind() RecommendationKind { return RecommendationExpenseOptimization }
func (GoalAdjustment) Kind() RecommendationKind      { return RecommendationGoalAdjustment }
func (BudgetAlert) Kind() RecommendationKind         { return RecommendationBudgetAlert }

func (InvestmentAdvice) isRecommendationPayload()    {}
func (ExpenseOptimization) isRecommendationPayload() {}
func (GoalAdjustment) isRecommendationPayload()      {}
func (BudgetAlert) isRecommendationPayload()         {}

type payloadEnvelope struct {
	Type RecommendationKind `json:"type"`
	Data json.RawMessage    `json:"data"`
}

// MarshalPayload encodes p as {"type": kind, "data": {...}}.
func MarshalPayload(p RecommendationPayload) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil recommendation payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(payloadEnvelope{Type: p.Kind(), Data: data})
}

// UnmarshalPayload decodes the envelope written by MarshalPayload, dispatching on type.
func UnmarshalPayload(b []byte) (RecommendationPayload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	var p RecommendationPayload
	switch env.Type {
	case RecommendationInvestment:
		var v InvestmentAdvice
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		p = v
	case RecommendationExpenseOptimization:
		var v ExpenseOptimization
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		p = v
	case RecommendationGoalAdjustment:
		var v GoalAdjustment
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		p = v
	case RecommendationBudgetAlert:
		var v BudgetAlert
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecommendationKind, env.Type)
	}
	return p, nil
}

// MarshalJSON keeps the payload tagged when a Recommendation is encoded.
func (r Recommendation) MarshalJSON() ([]byte, error) {
	type alias Recommendation
	var payload json.RawMessage
	if r.Payload != nil {
		b, err := MarshalPayload(r.Payload)
		if err != nil {
			return nil, err
		}
		payload = b
	}
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"Payload,omitempty"`
	}{alias: alias(r), Payload: payload})
}

func (r *Recommendation) UnmarshalJSON(b []byte) error {
	type alias Recommendation
	aux := struct {
		*alias
		Payload json.RawMessage `json:"Payload,omitempty"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		r.Payload = nil
		return nil
	}
	p, err := UnmarshalPayload(aux.Payload)
	if err != nil {
		return err
	}
	r.Payload = p
	return nil
}
