package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/llm"
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/providers"
	"github.com/riskradar/riskradar/pkg/scoring"
)

// Analyzer turns collected evidence into a report. The narrative comes from
// the LLM cascade; the risk assessment always comes from the deterministic
// scorer, which overwrites whatever the model proposed.
type Analyzer struct {
	cascade *llm.Cascade
	scorer  *scoring.Scorer
	log     *slog.Logger
}

// NewAnalyzer builds an analyzer.
func NewAnalyzer(cascade *llm.Cascade, scorer *scoring.Scorer) *Analyzer {
	return &Analyzer{
		cascade: cascade,
		scorer:  scorer,
		log:     slog.With("component", "workflow.analyzer"),
	}
}

// Analyze produces the report for the current session state. When the LLM
// cascade is exhausted or its output cannot be repaired, a degraded report
// is built from the scorer alone; cancellation is the only error surfaced.
func (a *Analyzer) Analyze(ctx context.Context, state *models.WorkflowState) (*models.ClientAnalysisReport, error) {
	evidence := evidenceFromState(state)
	scored := a.scorer.Score(evidence)

	report, err := a.generateNarrative(ctx, state)
	if err != nil {
		if errkind.KindOf(err) == errkind.Cancelled {
			return nil, err
		}
		a.log.Warn("LLM narrative unavailable, building degraded report",
			"session_id", state.SessionID, "kind", errkind.KindOf(err))
		report = a.degradedReport(state, scored)
	}

	// The scorer is authoritative for the assessment regardless of what
	// the model wrote.
	report.RiskAssessment = models.RiskAssessment{
		Score:   scored.Score,
		Level:   scored.Level,
		Factors: factorDescriptions(scored.Factors),
	}
	report.Metadata.ClientName = state.ClientName
	report.Metadata.INN = state.INN
	report.Metadata.AnalysisDate = time.Now().UTC()
	report.Metadata.SourcesUsed = state.CollectionStats.SuccessfulSources
	report.LegalCasesCount = legalCasesCount(evidence)
	report.Citations = mergeCitations(report.Citations, state.SearchResults)
	return report, nil
}

func (a *Analyzer) generateNarrative(ctx context.Context, state *models.WorkflowState) (*models.ClientAnalysisReport, error) {
	prompt, err := buildPrompt(state)
	if err != nil {
		return nil, err
	}

	var report models.ClientAnalysisReport
	meta, err := a.cascade.GenerateJSON(ctx, prompt, llm.Params{Temperature: 0.2}, &report, func() error {
		return models.ValidateReport(&report)
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("narrative generated",
		"session_id", state.SessionID, "provider", meta.Provider,
		"fallback_depth", meta.FallbackDepth, "repaired", meta.Repaired)
	return &report, nil
}

const reportSchemaHint = `{
  "metadata": {"client_name": "...", "inn": "..."},
  "company_info": {"status": "...", "address": "...", "manager": "..."},
  "risk_assessment": {"score": 0, "level": "low", "factors": ["..."]},
  "findings": [{"category": "legal|financial|reputation|regulatory", "source": "...", "sentiment": "positive|neutral|negative", "key_points": ["..."]}],
  "summary": "...",
  "recommendations": ["..."]
}`

// buildPrompt renders the analysis instruction with the full evidence set.
// Feedback re-runs append the previous report and the reviewer's comment.
func buildPrompt(state *models.WorkflowState) (string, error) {
	evidence, err := json.Marshal(struct {
		Sources map[string]models.SourceResultEnvelope `json:"sources"`
		Search  []models.SearchSnippet                 `json:"search_results"`
	}{state.SourceData, state.SearchResults})
	if err != nil {
		return "", fmt.Errorf("serializing evidence: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a counterparty risk analyst. Analyze the Russian company %q", state.ClientName)
	if state.INN != "" {
		fmt.Fprintf(&b, " (INN %s)", state.INN)
	}
	b.WriteString(" using only the evidence below. Respond in Russian where the evidence is Russian.\n\n")
	b.WriteString("Evidence:\n")
	b.Write(evidence)
	b.WriteString("\n\nReturn ONLY a JSON object with this shape:\n")
	b.WriteString(reportSchemaHint)
	b.WriteString("\nEvery finding must cite a source present in the evidence. Do not invent facts.")

	if state.PreviousReport != nil && state.UserComment != "" {
		prev, err := json.Marshal(state.PreviousReport)
		if err != nil {
			return "", fmt.Errorf("serializing previous report: %w", err)
		}
		fmt.Fprintf(&b, "\n\nA reviewer rated your previous report %q and commented: %q\nPrevious report:\n%s\nRevise the analysis to address the comment.",
			state.UserFeedback, state.UserComment, prev)
	}
	return b.String(), nil
}

// degradedReport is the scorer-only fallback when no LLM narrative could be
// produced.
func (a *Analyzer) degradedReport(state *models.WorkflowState, scored scoring.Result) *models.ClientAnalysisReport {
	report := &models.ClientAnalysisReport{
		Summary:  fmt.Sprintf("Automated assessment of %s: risk score %d (%s). Narrative analysis was unavailable; findings are derived from rule-based scoring only.", state.ClientName, scored.Score, scored.Level),
		Degraded: true,
	}
	for _, f := range scored.Factors {
		report.Findings = append(report.Findings, models.Finding{
			Category:  string(f.Category),
			Source:    f.Source,
			Sentiment: models.SentimentNegative,
			KeyPoints: []string{f.Description},
		})
	}
	if company, ok := registryPayload(state); ok {
		report.CompanyInfo = map[string]any{
			"name":    company.Name,
			"status":  company.Status,
			"address": company.Address,
			"manager": company.Manager,
		}
	}
	return report
}

// evidenceFromState converts source envelopes into the scorer's typed view.
// Payloads survive a JSON round trip so this works both for live sessions
// (typed payloads) and for re-runs rehydrated from a stored thread
// (map payloads).
func evidenceFromState(state *models.WorkflowState) scoring.Evidence {
	ev := scoring.Evidence{Search: state.SearchResults}

	if company, ok := registryPayload(state); ok {
		ev.Registry = &scoring.RegistryEvidence{Status: company.Status}
	}
	if env, ok := usableEnvelope(state, providers.SourceCourt); ok {
		var data providers.CourtData
		if decodePayload(env.Payload, &data) == nil {
			cases := make([]scoring.CourtCase, 0, len(data.Cases))
			for _, c := range data.Cases {
				cases = append(cases, scoring.CourtCase{Category: c.Category, CaseName: c.CaseName, Role: c.Role})
			}
			ev.Court = &scoring.CourtEvidence{Cases: cases}
		}
	}
	if env, ok := usableEnvelope(state, providers.SourceAnalytics); ok {
		var data providers.AnalyticsData
		if decodePayload(env.Payload, &data) == nil {
			ev.Analytics = &scoring.AnalyticsEvidence{
				LiquidityRatio: data.LiquidityRatio,
				DebtRatio:      data.DebtRatio,
				CreditRating:   data.CreditRating,
			}
		}
	}
	return ev
}

func registryPayload(state *models.WorkflowState) (*providers.RegistryCompany, bool) {
	env, ok := usableEnvelope(state, providers.SourceRegistry)
	if !ok {
		return nil, false
	}
	var company providers.RegistryCompany
	if decodePayload(env.Payload, &company) != nil {
		return nil, false
	}
	return &company, true
}

func usableEnvelope(state *models.WorkflowState, source string) (models.SourceResultEnvelope, bool) {
	env, ok := state.SourceData[source]
	if !ok || env.Status == models.SourceFailed || env.Payload == nil {
		return models.SourceResultEnvelope{}, false
	}
	return env, true
}

func decodePayload(payload, target any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func legalCasesCount(ev scoring.Evidence) int {
	if ev.Court == nil {
		return 0
	}
	return len(ev.Court.Cases)
}

func factorDescriptions(factors []scoring.Factor) []string {
	out := make([]string, 0, len(factors))
	for _, f := range factors {
		out = append(out, f.Description)
	}
	return out
}

func mergeCitations(existing []string, snippets []models.SearchSnippet) []string {
	seen := make(map[string]struct{}, len(existing))
	merged := make([]string, 0, len(existing))
	for _, c := range existing {
		if _, dup := seen[c]; !dup {
			seen[c] = struct{}{}
			merged = append(merged, c)
		}
	}
	for _, s := range snippets {
		for _, c := range s.Citations {
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				merged = append(merged, c)
			}
		}
	}
	return merged
}
