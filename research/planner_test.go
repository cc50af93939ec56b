package research

import (
	"context"
	"errors"
	"testing"

	"github.com/bububa/research-agents/components"
)

type stubInitialPlanAgent struct {
	queries []string
	err     error
	calls   int
}

func (a *stubInitialPlanAgent) Run(_ context.Context, _ *PlanInput, output *InitialPlanOutput, _ *components.LLMResponse) error {
	a.calls++
	if a.err != nil {
		return a.err
	}
	output.Queries = a.queries
	return nil
}

type stubGapFillPlanAgent struct {
	queries []string
	err     error
	calls   int
}

func (a *stubGapFillPlanAgent) Run(_ context.Context, _ *GapFillInput, output *GapFillPlanOutput, _ *components.LLMResponse) error {
	a.calls++
	if a.err != nil {
		return a.err
	}
	output.Queries = a.queries
	return nil
}

func TestPlanInitial(t *testing.T) {
	initial := &stubInitialPlanAgent{queries: []string{
		"microplastics health effects",
		"Microplastics  health Effects",
		"microplastics drinking water",
	}}
	planner := NewPlanner(initial, &stubGapFillPlanAgent{}, 3)

	queries, err := planner.PlanInitial(context.Background(), "microplastics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected 2 deduplicated queries, got %d", len(queries))
	}
	for _, q := range queries {
		if q.Origin != QueryOriginInitial {
			t.Errorf("expected initial origin, got %q", q.Origin)
		}
		if q.Iteration != 1 {
			t.Errorf("expected iteration 1, got %d", q.Iteration)
		}
	}
}

func TestPlanInitialCapsQueries(t *testing.T) {
	initial := &stubInitialPlanAgent{queries: []string{"a", "b", "c", "d", "e"}}
	planner := NewPlanner(initial, &stubGapFillPlanAgent{}, 3)
	queries, err := planner.PlanInitial(context.Background(), "topic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 3 {
		t.Errorf("expected cap at 3 queries, got %d", len(queries))
	}
}

func TestPlanInitialRejectsNarrowPlan(t *testing.T) {
	initial := &stubInitialPlanAgent{queries: []string{"only one query"}}
	planner := NewPlanner(initial, &stubGapFillPlanAgent{}, 3)

	_, err := planner.PlanInitial(context.Background(), "topic")
	var planErr *PlanningError
	if !errors.As(err, &planErr) {
		t.Fatalf("expected PlanningError for a plan below three queries, got %v", err)
	}
}

func TestPlanInitialNoUsableQueries(t *testing.T) {
	tests := []struct {
		name  string
		agent *stubInitialPlanAgent
	}{
		{"empty list", &stubInitialPlanAgent{queries: nil}},
		{"model error", &stubInitialPlanAgent{err: errors.New("boom")}},
		{"whitespace only", &stubInitialPlanAgent{queries: []string{"   ", "  ", " "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := NewPlanner(tt.agent, &stubGapFillPlanAgent{}, 3)
			_, err := planner.PlanInitial(context.Background(), "topic")
			var planErr *PlanningError
			if !errors.As(err, &planErr) {
				t.Fatalf("expected PlanningError, got %v", err)
			}
		})
	}
}

func TestPlanGapFill(t *testing.T) {
	gapFill := &stubGapFillPlanAgent{queries: []string{"regulation of microplastics"}}
	planner := NewPlanner(&stubInitialPlanAgent{}, gapFill, 3)

	gaps := &GapAnalysis{MissingAspects: []string{"regulation"}, Continue: true}
	queries, err := planner.PlanGapFill(context.Background(), "microplastics", gaps, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].Origin != QueryOriginGapFill || queries[0].Iteration != 2 {
		t.Errorf("unexpected query metadata: %+v", queries[0])
	}
}

func TestPlanGapFillNoAspects(t *testing.T) {
	gapFill := &stubGapFillPlanAgent{queries: []string{"should not be called"}}
	planner := NewPlanner(&stubInitialPlanAgent{}, gapFill, 3)

	queries, err := planner.PlanGapFill(context.Background(), "topic", &GapAnalysis{Continue: true}, 2)
	if err != nil || queries != nil {
		t.Fatalf("expected nil, nil for empty aspects, got %v, %v", queries, err)
	}
	if gapFill.calls != 0 {
		t.Error("agent should not run without missing aspects")
	}
}

func TestPlanGapFillZeroQueriesIsNormalStop(t *testing.T) {
	planner := NewPlanner(&stubInitialPlanAgent{}, &stubGapFillPlanAgent{queries: nil}, 3)
	gaps := &GapAnalysis{MissingAspects: []string{"x"}, Continue: true}
	queries, err := planner.PlanGapFill(context.Background(), "topic", gaps, 2)
	if err != nil {
		t.Fatalf("zero gap-fill queries must not be an error, got %v", err)
	}
	if len(queries) != 0 {
		t.Fatalf("expected no queries, got %d", len(queries))
	}
}
