package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/providers"
	"github.com/riskradar/riskradar/pkg/scoring"
)

const (
	// perSessionConcurrency bounds in-flight provider calls within one
	// session.
	perSessionConcurrency = 5
	// globalConcurrency bounds in-flight provider calls across all
	// sessions.
	globalConcurrency = 64
)

// Collector fans out to the configured data sources and gathers their
// results into envelopes. Every source failure is recorded, not raised;
// only the absence of all critical data aborts the session.
type Collector struct {
	providers *providers.Set
	global    *semaphore.Weighted
	log       *slog.Logger
}

// NewCollector builds a collector. The global concurrency budget is owned
// here and shared by every session.
func NewCollector(set *providers.Set) *Collector {
	return &Collector{
		providers: set,
		global:    semaphore.NewWeighted(globalConcurrency),
		log:       slog.With("component", "workflow.collector"),
	}
}

// CollectResult is the collector's delta to the session state.
type CollectResult struct {
	SourceData    map[string]models.SourceResultEnvelope
	SearchResults []models.SearchSnippet
	Stats         models.CollectionStats
}

type collectTask struct {
	source string
	run    func(ctx context.Context) (payload any, snippets []models.SearchSnippet, err error)
}

type taskOutcome struct {
	envelope models.SourceResultEnvelope
	snippets []models.SearchSnippet
}

// Collect runs every applicable source concurrently and emits a
// source_result event per source in completion order. companyINN is either
// empty or already validated by the planner.
func (c *Collector) Collect(ctx context.Context, sessionID, companyINN string, plan []models.SearchIntent, emit func(Event)) (*CollectResult, error) {
	start := time.Now()
	tasks := c.buildTasks(companyINN, plan)
	if len(tasks) == 0 {
		return nil, errkind.New(errkind.InvalidInput, "no data sources applicable to this request")
	}

	sessionSem := semaphore.NewWeighted(perSessionConcurrency)
	outcomes := make(chan taskOutcome)
	for _, t := range tasks {
		go func(t collectTask) {
			outcomes <- c.runTask(ctx, sessionSem, t)
		}(t)
	}

	result := &CollectResult{SourceData: make(map[string]models.SourceResultEnvelope, len(tasks))}
	for range tasks {
		out := <-outcomes
		result.SourceData[out.envelope.Source] = out.envelope
		result.SearchResults = append(result.SearchResults, out.snippets...)

		if out.envelope.Status == models.SourceFailed {
			result.Stats.FailedSources = append(result.Stats.FailedSources, out.envelope.Source)
		} else {
			result.Stats.SuccessfulSources = append(result.Stats.SuccessfulSources, out.envelope.Source)
		}
		emit(Event{
			SessionID: sessionID,
			Type:      EventSourceResult,
			Payload: SourceResultPayload{
				Source:     out.envelope.Source,
				Status:     out.envelope.Status,
				DurationMS: out.envelope.DurationMS,
				Error:      out.envelope.Error,
			},
		})
	}
	result.Stats.DurationMS = time.Since(start).Milliseconds()

	if err := c.checkCritical(companyINN, result); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Collector) runTask(ctx context.Context, sessionSem *semaphore.Weighted, t collectTask) taskOutcome {
	envelope := models.SourceResultEnvelope{Source: t.source}

	if err := sessionSem.Acquire(ctx, 1); err != nil {
		envelope.Status = models.SourceFailed
		envelope.Error = "collection cancelled"
		return taskOutcome{envelope: envelope}
	}
	defer sessionSem.Release(1)
	if err := c.global.Acquire(ctx, 1); err != nil {
		envelope.Status = models.SourceFailed
		envelope.Error = "collection cancelled"
		return taskOutcome{envelope: envelope}
	}
	defer c.global.Release(1)

	start := time.Now()
	payload, snippets, err := t.run(ctx)
	envelope.DurationMS = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		envelope.Status = models.SourceFailed
		envelope.Error = err.Error()
		c.log.Warn("source collection failed",
			"source", t.source, "kind", errkind.KindOf(err), "duration_ms", envelope.DurationMS)
	default:
		envelope.Status = models.SourceSuccess
		envelope.Payload = payload
		if partialPayload(payload) {
			envelope.Status = models.SourcePartial
		}
		c.log.Info("source collected",
			"source", t.source, "status", envelope.Status, "duration_ms", envelope.DurationMS)
	}
	return taskOutcome{envelope: envelope, snippets: snippets}
}

// partialPayload flags successes that did not cover everything asked of the
// source.
func partialPayload(payload any) bool {
	switch data := payload.(type) {
	case *providers.CourtData:
		return data.Truncated
	case *basicSearchData:
		return data.failedIntents() > 0
	}
	return false
}

// buildTasks assembles the task list: the three structural sources when an
// INN is known, one basic-search pass covering every planned intent, and one
// deep-search pass over the negative intent when that backend is configured.
// The provider is the unit of reporting; each task yields exactly one
// envelope and one source_result event.
func (c *Collector) buildTasks(companyINN string, plan []models.SearchIntent) []collectTask {
	var tasks []collectTask

	if companyINN != "" {
		tasks = append(tasks,
			collectTask{source: providers.SourceRegistry, run: func(ctx context.Context) (any, []models.SearchSnippet, error) {
				payload, err := c.providers.Registry.Lookup(ctx, companyINN)
				return payload, nil, err
			}},
			collectTask{source: providers.SourceCourt, run: func(ctx context.Context) (any, []models.SearchSnippet, error) {
				payload, err := c.providers.Court.Cases(ctx, companyINN)
				return payload, nil, err
			}},
			collectTask{source: providers.SourceAnalytics, run: func(ctx context.Context) (any, []models.SearchSnippet, error) {
				payload, err := c.providers.Analytics.Indicators(ctx, companyINN)
				return payload, nil, err
			}},
		)
	}

	if len(plan) > 0 {
		plan := plan
		tasks = append(tasks, collectTask{source: providers.SourceSearchBasic, run: func(ctx context.Context) (any, []models.SearchSnippet, error) {
			return c.runBasicSearch(ctx, plan)
		}})
	}

	if c.providers.SearchDeep.Configured() {
		if intent, ok := deepIntent(plan); ok {
			tasks = append(tasks, collectTask{source: providers.SourceSearchDeep, run: func(ctx context.Context) (any, []models.SearchSnippet, error) {
				res, err := c.providers.SearchDeep.Search(ctx, intent.Query)
				if err != nil {
					return nil, nil, err
				}
				return res, []models.SearchSnippet{annotateSnippet(intent, providers.SourceSearchDeep, res)}, nil
			}})
		}
	}

	return tasks
}

// basicSearchData is the search_basic envelope payload: one entry per
// planned intent, with failures recorded in place so a partly failed pass
// still surfaces as a single partial source.
type basicSearchData struct {
	Intents []intentSearchResult `json:"intents"`
}

type intentSearchResult struct {
	Category  models.IntentCategory `json:"category"`
	Query     string                `json:"query"`
	Content   string                `json:"content,omitempty"`
	Citations []string              `json:"citations,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func (d *basicSearchData) failedIntents() int {
	n := 0
	for _, r := range d.Intents {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// runBasicSearch runs every planned intent against the basic search backend
// in turn. All intents share one envelope; the pass errors only when no
// intent produced anything.
func (c *Collector) runBasicSearch(ctx context.Context, plan []models.SearchIntent) (any, []models.SearchSnippet, error) {
	data := &basicSearchData{Intents: make([]intentSearchResult, 0, len(plan))}
	var snippets []models.SearchSnippet
	var firstErr error
	for _, intent := range plan {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		res, err := c.providers.SearchBasic.Search(ctx, intent.Query)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			data.Intents = append(data.Intents, intentSearchResult{
				Category: intent.Category,
				Query:    intent.Query,
				Error:    err.Error(),
			})
			continue
		}
		data.Intents = append(data.Intents, intentSearchResult{
			Category:  intent.Category,
			Query:     intent.Query,
			Content:   res.Content,
			Citations: res.Citations,
		})
		snippets = append(snippets, annotateSnippet(intent, providers.SourceSearchBasic, res))
	}
	if len(snippets) == 0 {
		return nil, nil, fmt.Errorf("all %d search intents failed: %w", len(plan), firstErr)
	}
	return data, snippets, nil
}

// deepIntent picks the intent worth the expensive deep-search pass: the
// negative-coverage intent when planned, otherwise the first one.
func deepIntent(plan []models.SearchIntent) (models.SearchIntent, bool) {
	for _, intent := range plan {
		if intent.Category == models.IntentNegative {
			return intent, true
		}
	}
	if len(plan) > 0 {
		return plan[0], true
	}
	return models.SearchIntent{}, false
}

func annotateSnippet(intent models.SearchIntent, source string, res *providers.SearchResult) models.SearchSnippet {
	sentiment, score := scoring.AnalyzeSentiment(res.Content)
	return models.SearchSnippet{
		IntentCategory: intent.Category,
		Source:         source,
		Query:          intent.Query,
		Content:        res.Content,
		Citations:      res.Citations,
		Sentiment:      sentiment,
		SentimentScore: score,
	}
}

// checkCritical enforces the hard data-floor rules: with an INN both
// registry and analytics failing is unrecoverable, and a pass where nothing
// at all succeeded cannot be analyzed.
func (c *Collector) checkCritical(companyINN string, result *CollectResult) error {
	if len(result.Stats.SuccessfulSources) == 0 {
		return errkind.New(errkind.InsufficientData, "every data source failed")
	}
	if companyINN == "" {
		return nil
	}
	registryFailed := result.SourceData[providers.SourceRegistry].Status == models.SourceFailed
	analyticsFailed := result.SourceData[providers.SourceAnalytics].Status == models.SourceFailed
	if registryFailed && analyticsFailed {
		return errkind.New(errkind.InsufficientData, "both critical sources (registry, analytics) failed")
	}
	return nil
}
