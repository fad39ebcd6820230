package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPayloadRoundTripKeepsKind(t *testing.T) {
	payloads := []RecommendationPayload{
		InvestmentAdvice{Symbol: "NIFTYBEES", Name: "Nifty 50 ETF", Action: "BUY", Reason: "low cost"},
		ExpenseOptimization{Category: "Shopping", CurrentMonthly: decimal.NewFromInt(12000), SuggestedLimit: decimal.NewFromInt(8000)},
		BudgetAlert{Month: "2025-03", Category: "Travel", Budgeted: decimal.NewFromInt(5000), Spent: decimal.NewFromInt(6200)},
	}
	for _, p := range payloads {
		b, err := MarshalPayload(p)
		if err != nil {
			t.Fatalf("%s: marshal: %v", p.Kind(), err)
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("%s: envelope: %v", p.Kind(), err)
		}
		if env.Type != string(p.Kind()) {
			t.Fatalf("expected type %q, got %q", p.Kind(), env.Type)
		}
		got, err := UnmarshalPayload(b)
		if err != nil {
			t.Fatalf("%s: unmarshal: %v", p.Kind(), err)
		}
		if got.Kind() != p.Kind() {
			t.Fatalf("expected kind %q, got %q", p.Kind(), got.Kind())
		}
	}
}

func TestUnmarshalPayloadRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalPayload([]byte(`{"type":"lottery","data":{}}`))
	if !errors.Is(err, ErrUnknownRecommendationKind) {
		t.Fatalf("expected ErrUnknownRecommendationKind, got %v", err)
	}
}

func TestRecommendationJSON(t *testing.T) {
	in := Recommendation{
		ID:       "r1",
		UserID:   "u1",
		Title:    "Trim shopping",
		Priority: PriorityHigh,
		Payload:  ExpenseOptimization{Category: "Shopping", CurrentMonthly: decimal.NewFromInt(100), SuggestedLimit: decimal.NewFromInt(80)},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Recommendation
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	opt, ok := out.Payload.(ExpenseOptimization)
	if !ok {
		t.Fatalf("expected ExpenseOptimization payload, got %T", out.Payload)
	}
	if !opt.SuggestedLimit.Equal(decimal.NewFromInt(80)) || out.Title != "Trim shopping" {
		t.Fatalf("unexpected round trip result: %+v", out)
	}
}

func TestRecommendationValidate(t *testing.T) {
	valid := Recommendation{
		UserID:     "u1",
		Title:      "Cap dining out",
		Confidence: 0.6,
		Priority:   PriorityMedium,
		Payload:    ExpenseOptimization{Category: "Food & Dining"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid recommendation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Recommendation)
	}{
		{"missing user", func(r *Recommendation) { r.UserID = "" }},
		{"missing title", func(r *Recommendation) { r.Title = "" }},
		{"missing payload", func(r *Recommendation) { r.Payload = nil }},
		{"confidence above one", func(r *Recommendation) { r.Confidence = 1.5 }},
		{"unknown priority", func(r *Recommendation) { r.Priority = "urgent" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, ErrInvalidRecommendation) {
				t.Errorf("expected ErrInvalidRecommendation, got %v", err)
			}
		})
	}
}
