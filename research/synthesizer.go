package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bububa/instructor-go/pkg/instructor"
	"github.com/go-playground/validator/v10"

	"github.com/bububa/research-agents/agents"
	"github.com/bububa/research-agents/components"
	"github.com/bububa/research-agents/components/systemprompt/cot"
	"github.com/bububa/research-agents/schema"
)

// EvidenceBlock is one source serialized into a synthesis prompt.
type EvidenceBlock struct {
	// SourceID identifies the source for citation purposes.
	SourceID string `json:"source_id" jsonschema:"title=source_id,description=Identifier to cite this source by."`
	// URL of the source page.
	URL string `json:"url" jsonschema:"title=url,description=The source URL."`
	// Title of the source page.
	Title string `json:"title" jsonschema:"title=title,description=The source title."`
	// Content is the extracted page text, or the search snippet when the
	// page could not be fetched.
	Content string `json:"content" jsonschema:"title=content,description=Extracted text or search snippet of the source."`
}

// DraftInput carries the topic, the prior draft and the evidence for one
// synthesis pass.
type DraftInput struct {
	schema.Base
	// Topic is the research topic.
	Topic string `json:"topic" jsonschema:"title=topic,description=The research topic."`
	// PriorReport is the previous draft to extend, empty on the first pass.
	PriorReport string `json:"prior_report,omitempty" jsonschema:"title=prior_report,description=The previous draft to extend; empty on the first pass."`
	// Evidence is the source material to synthesize from.
	Evidence []EvidenceBlock `json:"evidence" jsonschema:"title=evidence,description=Source material to synthesize the report from."`
}

func (s DraftInput) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// DraftOutput is the model's revised report.
type DraftOutput struct {
	schema.Base
	// Report is the markdown report text.
	Report string `json:"report" jsonschema:"title=report,description=The revised markdown report." validate:"required"`
	// Citations map report claims to evidence source IDs.
	Citations []Citation `json:"citations,omitempty" jsonschema:"title=citations,description=Claims in the report mapped to evidence source IDs."`
}

func (s DraftOutput) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// GapInput asks the model to judge draft coverage of the topic.
type GapInput struct {
	schema.Base
	// Topic is the research topic.
	Topic string `json:"topic" jsonschema:"title=topic,description=The research topic."`
	// Report is the current draft.
	Report string `json:"report" jsonschema:"title=report,description=The current draft report."`
}

func (s GapInput) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// GapOutput is the model's coverage assessment.
type GapOutput struct {
	schema.Base
	// CoveredAspects the draft already addresses.
	CoveredAspects []string `json:"covered_aspects,omitempty" jsonschema:"title=covered_aspects,description=Aspects of the topic the draft already addresses."`
	// MissingAspects the draft does not yet address.
	MissingAspects []string `json:"missing_aspects,omitempty" jsonschema:"title=missing_aspects,description=Aspects of the topic the draft does not yet address."`
	// Continue signals whether further research is worthwhile.
	Continue bool `json:"continue" jsonschema:"title=continue,description=Whether another research round is worthwhile."`
}

func (s GapOutput) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// DraftAgent extends a report draft from evidence.
type DraftAgent interface {
	Run(ctx context.Context, input *DraftInput, output *DraftOutput, llmResp *components.LLMResponse) error
}

// GapAgent assesses draft coverage of the topic.
type GapAgent interface {
	Run(ctx context.Context, input *GapInput, output *GapOutput, llmResp *components.LLMResponse) error
}

// Synthesizer turns accumulated evidence into a cited markdown report and
// assesses what the report still misses.
type Synthesizer struct {
	draft    DraftAgent
	gaps     GapAgent
	counter  TokenCounter
	validate *validator.Validate
	budget   int
}

// NewSynthesizer builds a Synthesizer from the two agents. counter may be
// nil; a word-count approximation is used then.
func NewSynthesizer(draft DraftAgent, gaps GapAgent, counter TokenCounter, budget int) *Synthesizer {
	if counter == nil {
		counter = WordTokenCounter{}
	}
	return &Synthesizer{
		draft:    draft,
		gaps:     gaps,
		counter:  counter,
		validate: validator.New(),
		budget:   budget,
	}
}

// NewLLMSynthesizer wires a Synthesizer to a language model client.
func NewLLMSynthesizer(clt instructor.Instructor, model string, counter TokenCounter, budget int) *Synthesizer {
	draft := agents.NewAgent[DraftInput, DraftOutput](
		agents.WithClient(clt),
		agents.WithModel(model),
		agents.WithName("ReportSynthesizer"),
		agents.WithTemperature(0.3),
		agents.WithSystemPromptGenerator(cot.New(
			cot.WithBackground([]string{
				"- You are an expert research assistant.",
				"- You write thorough, well-structured markdown reports grounded in the provided evidence.",
			}),
			cot.WithSteps([]string{
				"- Read the topic, the prior report and the evidence blocks.",
				"- Extend and restructure the report so it incorporates the new evidence.",
				"- Attribute every substantive claim to the source_id of the evidence supporting it.",
			}),
			cot.WithOutputInstructs([]string{
				"- Return pure markdown without surrounding code fences.",
				"- Only cite source IDs that appear in the evidence.",
			}),
		)),
	)
	gaps := agents.NewAgent[GapInput, GapOutput](
		agents.WithClient(clt),
		agents.WithModel(model),
		agents.WithName("CoverageAssessor"),
		agents.WithTemperature(0.3),
		agents.WithSystemPromptGenerator(cot.New(
			cot.WithBackground([]string{
				"- You are an expert research assistant.",
				"- You judge whether a report covers its topic adequately.",
			}),
			cot.WithSteps([]string{
				"- Compare the report against the facets a thorough treatment of the topic requires.",
				"- List covered and missing aspects.",
				"- Set continue to false when the remaining gaps are minor.",
			}),
		)),
	)
	return NewSynthesizer(draft, gaps, counter, budget)
}

// ExtendDraft produces the next draft version from the given evidence
// items, typically store.Snapshot() or a relevance-ranked subset of it.
// When the model call fails it is retried once with snippet-only evidence
// before giving up with a *SynthesisError. Citations referencing sources
// outside the store are dropped.
func (s *Synthesizer) ExtendDraft(ctx context.Context, topic string, prior *Draft, store *EvidenceStore, snapshot []EvidenceItem) (*Draft, error) {
	priorReport := ""
	version := 0
	if prior != nil {
		priorReport = prior.Report
		version = prior.Version
	}
	input := &DraftInput{
		Topic:       topic,
		PriorReport: priorReport,
		Evidence:    s.buildEvidence(snapshot, false),
	}
	output, err := s.runDraft(ctx, input)
	if err != nil {
		// Retry with snippets only; a shorter prompt sidesteps most
		// context-length and timeout failures.
		input.Evidence = s.buildEvidence(snapshot, true)
		output, err = s.runDraft(ctx, input)
		if err != nil {
			return nil, &SynthesisError{Stage: StageExtendDraft, Err: err}
		}
	}
	draft := &Draft{
		Version:   version + 1,
		Report:    stripMarkdownFences(output.Report),
		Citations: filterCitations(output.Citations, store),
	}
	return draft, nil
}

func (s *Synthesizer) runDraft(ctx context.Context, input *DraftInput) (*DraftOutput, error) {
	output := new(DraftOutput)
	if err := s.draft.Run(ctx, input, output, nil); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(output); err != nil {
		return nil, fmt.Errorf("draft response rejected: %w", err)
	}
	return output, nil
}

// assessRetryMaxChars bounds the report sent on the assessment retry.
const assessRetryMaxChars = 4000

// AssessGaps judges the draft's coverage of the topic. The model call is
// retried once with a shortened report before giving up with a
// *SynthesisError.
func (s *Synthesizer) AssessGaps(ctx context.Context, topic string, draft *Draft) (*GapAnalysis, error) {
	input := &GapInput{Topic: topic, Report: draft.Report}
	output := new(GapOutput)
	if err := s.gaps.Run(ctx, input, output, nil); err != nil {
		input = &GapInput{Topic: topic, Report: capText(draft.Report, assessRetryMaxChars)}
		output = new(GapOutput)
		if err = s.gaps.Run(ctx, input, output, nil); err != nil {
			return nil, &SynthesisError{Stage: StageAssessGaps, Err: err}
		}
	}
	return &GapAnalysis{
		CoveredAspects: output.CoveredAspects,
		MissingAspects: output.MissingAspects,
		Continue:       output.Continue,
	}, nil
}

// buildEvidence serializes evidence newest-first until the token budget is
// spent. Failed fetches contribute their search snippet so every retrieved
// source can still anchor a citation.
func (s *Synthesizer) buildEvidence(snapshot []EvidenceItem, snippetsOnly bool) []EvidenceBlock {
	blocks := make([]EvidenceBlock, 0, len(snapshot))
	used := 0
	for i := len(snapshot) - 1; i >= 0; i-- {
		item := snapshot[i]
		content := item.Snippet
		if !snippetsOnly && item.Fetch == FetchOK && item.FullText != "" {
			content = item.FullText
		}
		if content == "" {
			continue
		}
		cost := s.counter.Count(content)
		if s.budget > 0 && used+cost > s.budget {
			if len(blocks) > 0 {
				continue
			}
			// Never send an empty prompt; cap the single oversized item.
			content = capText(content, s.budget*4)
			cost = s.counter.Count(content)
		}
		used += cost
		blocks = append(blocks, EvidenceBlock{
			SourceID: item.SourceID,
			URL:      item.URL,
			Title:    item.Title,
			Content:  content,
		})
	}
	// Restore oldest-first order for a stable prompt layout.
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks
}

// filterCitations drops citations that reference source IDs absent from
// the store.
func filterCitations(citations []Citation, store *EvidenceStore) []Citation {
	if len(citations) == 0 {
		return nil
	}
	kept := citations[:0:0]
	for _, c := range citations {
		if c.SourceID == "" || !store.Contains(c.SourceID) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// stripMarkdownFences unwraps a report the model wrapped in a markdown
// code fence.
func stripMarkdownFences(report string) string {
	trimmed := strings.TrimSpace(report)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed
	if idx := strings.Index(body, "\n"); idx >= 0 {
		fence := body[:idx]
		if fence == "```" || fence == "```markdown" || fence == "```md" {
			body = body[idx+1:]
			body = strings.TrimSuffix(strings.TrimSpace(body), "```")
			return strings.TrimSpace(body)
		}
	}
	return trimmed
}
