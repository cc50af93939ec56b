package research

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bububa/instructor-go/pkg/instructor"
	"github.com/go-playground/validator/v10"

	"github.com/bububa/research-agents/agents"
	"github.com/bububa/research-agents/components"
	"github.com/bububa/research-agents/components/systemprompt/cot"
	"github.com/bububa/research-agents/schema"
)

// PlanInput asks the model for initial search terms for a topic.
type PlanInput struct {
	schema.Base
	// Topic is the research topic to derive search terms from.
	Topic string `json:"topic" jsonschema:"title=topic,description=The research topic to derive search terms from."`
}

func (s PlanInput) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// GapFillInput asks the model for follow-up search terms covering the
// aspects the current draft misses.
type GapFillInput struct {
	schema.Base
	// Topic is the research topic.
	Topic string `json:"topic" jsonschema:"title=topic,description=The research topic."`
	// MissingAspects are facets of the topic the draft does not yet cover.
	MissingAspects []string `json:"missing_aspects" jsonschema:"title=missing_aspects,description=Facets of the topic the current draft does not cover."`
}

func (s GapFillInput) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// InitialPlanOutput is the model's opening query list. The schema demands
// the full 3 to 8 range so a narrow plan is rejected at the boundary.
type InitialPlanOutput struct {
	schema.Base
	// Queries are the derived search terms.
	Queries []string `json:"queries" jsonschema:"title=queries,description=Between 3 and 8 search terms covering distinct facets of the topic." validate:"required,min=3,max=8,dive,min=1"`
}

func (s InitialPlanOutput) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// GapFillPlanOutput is the model's follow-up query list. Empty is a valid
// answer: aspects that cannot be searched for yield no query.
type GapFillPlanOutput struct {
	schema.Base
	// Queries are the derived search terms.
	Queries []string `json:"queries" jsonschema:"title=queries,description=Search terms targeting the missing aspects; may be empty." validate:"omitempty,max=8,dive,min=1"`
}

func (s GapFillPlanOutput) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// InitialPlanAgent produces search terms from a bare topic.
type InitialPlanAgent interface {
	Run(ctx context.Context, input *PlanInput, output *InitialPlanOutput, llmResp *components.LLMResponse) error
}

// GapFillPlanAgent produces search terms from missing aspects.
type GapFillPlanAgent interface {
	Run(ctx context.Context, input *GapFillInput, output *GapFillPlanOutput, llmResp *components.LLMResponse) error
}

// Planner expands a topic into search queries, and coverage gaps into
// follow-up queries.
type Planner struct {
	initial    InitialPlanAgent
	gapFill    GapFillPlanAgent
	validate   *validator.Validate
	maxQueries int
}

// NewPlanner builds a Planner from the two planning agents.
func NewPlanner(initial InitialPlanAgent, gapFill GapFillPlanAgent, maxQueries int) *Planner {
	if maxQueries < minPlannedQueries {
		maxQueries = minPlannedQueries
	}
	if maxQueries > maxPlannedQueries {
		maxQueries = maxPlannedQueries
	}
	return &Planner{
		initial:    initial,
		gapFill:    gapFill,
		validate:   validator.New(),
		maxQueries: maxQueries,
	}
}

// NewLLMPlanner wires a Planner to a language model client.
func NewLLMPlanner(clt instructor.Instructor, model string, maxQueries int) *Planner {
	initial := agents.NewAgent[PlanInput, InitialPlanOutput](
		agents.WithClient(clt),
		agents.WithModel(model),
		agents.WithName("InitialQueryPlanner"),
		agents.WithTemperature(0.7),
		agents.WithSystemPromptGenerator(cot.New(
			cot.WithBackground([]string{
				"- You are an expert in performing web searches.",
				"- You derive focused search terms from a research topic.",
			}),
			cot.WithSteps([]string{
				"- Read the research topic.",
				fmt.Sprintf("- Derive between %d and %d search terms covering distinct facets of the topic.", minPlannedQueries, maxPlannedQueries),
				"- Make each search term as specific and impactful as possible.",
			}),
			cot.WithOutputInstructs([]string{
				"- Every query must target a different facet; no near-duplicates.",
			}),
		)),
	)
	gapFill := agents.NewAgent[GapFillInput, GapFillPlanOutput](
		agents.WithClient(clt),
		agents.WithModel(model),
		agents.WithName("GapFillQueryPlanner"),
		agents.WithTemperature(0.7),
		agents.WithSystemPromptGenerator(cot.New(
			cot.WithBackground([]string{
				"- You are an expert in performing web searches.",
				"- You derive follow-up search terms that close coverage gaps in a research draft.",
			}),
			cot.WithSteps([]string{
				"- Read the topic and the list of missing aspects.",
				"- Derive one focused search term per missing aspect.",
			}),
			cot.WithOutputInstructs([]string{
				"- Return no query for aspects that cannot be searched for.",
			}),
		)),
	)
	return NewPlanner(initial, gapFill, maxQueries)
}

// PlanInitial expands the topic into the first round of queries. A response
// outside the 3 to 8 query range, or one that dedupes down to nothing, is a
// PlanningError.
func (p *Planner) PlanInitial(ctx context.Context, topic string) ([]Query, error) {
	input := &PlanInput{Topic: topic}
	output := new(InitialPlanOutput)
	if err := p.initial.Run(ctx, input, output, nil); err != nil {
		return nil, &PlanningError{Message: fmt.Sprintf("initial query generation: %v", err)}
	}
	if err := p.validate.Struct(output); err != nil {
		return nil, &PlanningError{Message: fmt.Sprintf("initial plan rejected: %v", err)}
	}
	queries := p.collect(output.Queries, QueryOriginInitial, 1)
	if len(queries) == 0 {
		return nil, &PlanningError{Message: "model returned no usable queries"}
	}
	return queries, nil
}

// PlanGapFill expands missing aspects into follow-up queries. Zero queries
// is a normal termination signal, not a failure.
func (p *Planner) PlanGapFill(ctx context.Context, topic string, gaps *GapAnalysis, iteration int) ([]Query, error) {
	if gaps == nil || len(gaps.MissingAspects) == 0 {
		return nil, nil
	}
	input := &GapFillInput{Topic: topic, MissingAspects: gaps.MissingAspects}
	output := new(GapFillPlanOutput)
	if err := p.gapFill.Run(ctx, input, output, nil); err != nil {
		return nil, &PlanningError{Message: fmt.Sprintf("gap-fill query generation: %v", err)}
	}
	if err := p.validate.Struct(output); err != nil {
		return nil, nil
	}
	return p.collect(output.Queries, QueryOriginGapFill, iteration), nil
}

// collect reduces a validated query list to deduplicated, capped queries.
func (p *Planner) collect(raw []string, origin QueryOrigin, iteration int) []Query {
	queries := make([]Query, 0, len(raw))
	for _, text := range raw {
		queries = append(queries, Query{Text: text, Origin: origin, Iteration: iteration})
	}
	queries = dedupeQueries(queries)
	if len(queries) > p.maxQueries {
		queries = queries[:p.maxQueries]
	}
	return queries
}
