// Package scoring implements the deterministic risk scorer. Pure functions
// of the collected evidence: no I/O, no clock, identical inputs always yield
// identical outputs.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/models"
)

// Category names a scored risk dimension.
type Category string

const (
	CategoryLegal      Category = "legal"
	CategoryFinancial  Category = "financial"
	CategoryReputation Category = "reputation"
	CategoryRegulatory Category = "regulatory"
)

// Evidence is the scorer's typed view of the collected source data. A nil
// section means the source failed or was never called.
type Evidence struct {
	Registry  *RegistryEvidence
	Court     *CourtEvidence
	Analytics *AnalyticsEvidence
	Search    []models.SearchSnippet
}

// RegistryEvidence carries the registry facts the scorer consumes.
type RegistryEvidence struct {
	Status string // ACTIVE, LIQUIDATING, LIQUIDATED, BANKRUPT, ...
}

// CourtEvidence is the court-case list.
type CourtEvidence struct {
	Cases []CourtCase
}

// CourtCase is one arbitration case.
type CourtCase struct {
	Category string
	CaseName string
	Role     string // "defendant" or "plaintiff"
}

// AnalyticsEvidence carries the financial indicators.
type AnalyticsEvidence struct {
	LiquidityRatio *float64
	DebtRatio      *float64
	CreditRating   string
}

// Factor is one human-readable scoring driver.
type Factor struct {
	Category     Category `json:"category"`
	Description  string   `json:"description"`
	Severity     string   `json:"severity"` // critical/high/medium/low
	Contribution int      `json:"score_contribution"`
	Source       string   `json:"source"`
	Evidence     string   `json:"evidence,omitempty"`
}

// Result is the scored outcome.
type Result struct {
	Score    int
	Level    models.RiskLevel
	Factors  []Factor
	ByGroup  map[Category]int
	Degraded bool // true when no evidence section was usable at all
}

// Scorer computes the 0-100 risk score from weighted category
// contributions.
type Scorer struct {
	cfg *config.RiskConfig
}

// NewScorer builds a scorer with the given calibration.
func NewScorer(cfg *config.RiskConfig) *Scorer {
	if cfg == nil {
		cfg = config.DefaultRiskConfig()
	}
	return &Scorer{cfg: cfg}
}

// Score runs all four category calculations and normalizes the sum to
// 0-100 with half-up rounding.
func (s *Scorer) Score(ev Evidence) Result {
	var factors []Factor

	legal := s.legalRisk(ev, &factors)
	financial := s.financialRisk(ev, &factors)
	reputation := s.reputationRisk(ev, &factors)
	regulatory := s.regulatoryRisk(ev, &factors)

	raw := legal + financial + reputation + regulatory
	final := int(math.Round(float64(raw) / float64(s.cfg.RawScale()) * 100))
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	return Result{
		Score:   final,
		Level:   s.level(final),
		Factors: factors,
		ByGroup: map[Category]int{
			CategoryLegal:      legal,
			CategoryFinancial:  financial,
			CategoryReputation: reputation,
			CategoryRegulatory: regulatory,
		},
		Degraded: ev.Registry == nil && ev.Court == nil && ev.Analytics == nil && len(ev.Search) == 0,
	}
}

func (s *Scorer) level(score int) models.RiskLevel {
	switch {
	case score >= s.cfg.CriticalThreshold:
		return models.RiskCritical
	case score >= s.cfg.HighThreshold:
		return models.RiskHigh
	case score >= s.cfg.MediumThreshold:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// legalRisk scores company status and court-case exposure. A terminal
// registry status short-circuits at the category cap.
func (s *Scorer) legalRisk(ev Evidence, factors *[]Factor) int {
	score := 0
	limit := s.cfg.LegalCap

	if ev.Registry != nil {
		status := strings.ToUpper(ev.Registry.Status)
		switch status {
		case "LIQUIDATING", "LIQUIDATED", "BANKRUPT":
			*factors = append(*factors, Factor{
				Category:     CategoryLegal,
				Description:  "Company is liquidating or bankrupt",
				Severity:     "critical",
				Contribution: limit,
				Source:       "registry",
				Evidence:     "company status: " + status,
			})
			return limit
		case "ACTIVE":
			*factors = append(*factors, Factor{
				Category:    CategoryLegal,
				Description: "Company is active and registered",
				Severity:    "low",
				Source:      "registry",
				Evidence:    "company status: " + status,
			})
		}
	}

	if ev.Court == nil {
		return min(limit, score)
	}
	cases := ev.Court.Cases

	var bankruptcy, defendant, plaintiff int
	for _, c := range cases {
		text := strings.ToLower(c.Category + " " + c.CaseName)
		if strings.Contains(text, "банкротство") {
			bankruptcy++
		}
		switch c.Role {
		case "defendant":
			defendant++
		case "plaintiff":
			plaintiff++
		}
	}

	if bankruptcy > 0 {
		contribution := min(limit, 30+bankruptcy*3)
		score += contribution
		*factors = append(*factors, Factor{
			Category:     CategoryLegal,
			Description:  fmt.Sprintf("Bankruptcy proceedings: %d case(s)", bankruptcy),
			Severity:     "critical",
			Contribution: contribution,
			Source:       "court",
			Evidence:     fmt.Sprintf("%d bankruptcy cases found", bankruptcy),
		})
	}

	// When roles are missing, treat every case as defendant-side exposure.
	defendantCount := defendant
	if defendantCount == 0 {
		defendantCount = len(cases)
	}

	var defendantScore int
	var severity string
	switch {
	case defendantCount >= 100:
		defendantScore, severity = 25, "high"
	case defendantCount >= 50:
		defendantScore, severity = 20, "high"
	case defendantCount >= 20:
		defendantScore, severity = 15, "medium"
	case defendantCount >= 10:
		defendantScore, severity = 10, "medium"
	case defendantCount > 0:
		defendantScore, severity = 5, "low"
	}

	if defendantScore > 0 && bankruptcy == 0 {
		score += defendantScore
		*factors = append(*factors, Factor{
			Category:     CategoryLegal,
			Description:  fmt.Sprintf("Court cases: %d", defendantCount),
			Severity:     severity,
			Contribution: defendantScore,
			Source:       "court",
			Evidence:     fmt.Sprintf("company is party to %d court cases", defendantCount),
		})
	}

	if plaintiff > 0 && bankruptcy == 0 {
		score = max(0, score-3)
		*factors = append(*factors, Factor{
			Category:     CategoryLegal,
			Description:  fmt.Sprintf("Initiates lawsuits: %d claims", plaintiff),
			Severity:     "low",
			Contribution: -3,
			Source:       "court",
			Evidence:     fmt.Sprintf("company defends its interests (%d claims)", plaintiff),
		})
	}

	return min(limit, score)
}

var (
	lowRatings    = []string{"CCC", "CC", "C", "D", "NR"}
	mediumRatings = []string{"BB", "BB+", "BB-", "B", "B+", "B-"}
)

// financialRisk scores liquidity, leverage, and credit rating. Missing
// analytics data is itself a risk signal.
func (s *Scorer) financialRisk(ev Evidence, factors *[]Factor) int {
	limit := s.cfg.FinancialCap

	if ev.Analytics == nil {
		*factors = append(*factors, Factor{
			Category:     CategoryFinancial,
			Description:  "Financial data unavailable",
			Severity:     "medium",
			Contribution: 10,
			Source:       "analytics",
			Evidence:     "no analytics data",
		})
		return min(limit, 10)
	}

	score := 0
	data := ev.Analytics

	if data.LiquidityRatio != nil {
		switch liq := *data.LiquidityRatio; {
		case liq < 0.5:
			score += 28
			*factors = append(*factors, Factor{
				Category:     CategoryFinancial,
				Description:  "Critically low liquidity",
				Severity:     "critical",
				Contribution: 28,
				Source:       "analytics",
				Evidence:     fmt.Sprintf("liquidity ratio: %.2f", liq),
			})
		case liq < 1.0:
			score += 18
			*factors = append(*factors, Factor{
				Category:     CategoryFinancial,
				Description:  "Low liquidity",
				Severity:     "high",
				Contribution: 18,
				Source:       "analytics",
				Evidence:     fmt.Sprintf("liquidity ratio: %.2f", liq),
			})
		default:
			*factors = append(*factors, Factor{
				Category:    CategoryFinancial,
				Description: "Healthy liquidity",
				Severity:    "low",
				Source:      "analytics",
				Evidence:    fmt.Sprintf("liquidity ratio: %.2f", liq),
			})
		}
	}

	if data.DebtRatio != nil {
		switch debt := *data.DebtRatio; {
		case debt > 0.8:
			score += 20
			*factors = append(*factors, Factor{
				Category:     CategoryFinancial,
				Description:  "High debt load",
				Severity:     "high",
				Contribution: 20,
				Source:       "analytics",
				Evidence:     fmt.Sprintf("debt ratio: %.2f", debt),
			})
		case debt > 0.6:
			score += 10
			*factors = append(*factors, Factor{
				Category:     CategoryFinancial,
				Description:  "Elevated debt load",
				Severity:     "medium",
				Contribution: 10,
				Source:       "analytics",
				Evidence:     fmt.Sprintf("debt ratio: %.2f", debt),
			})
		}
	}

	rating := strings.ToUpper(data.CreditRating)
	if rating != "" {
		if containsAny(rating, lowRatings) {
			score += 25
			*factors = append(*factors, Factor{
				Category:     CategoryFinancial,
				Description:  "Low credit rating",
				Severity:     "critical",
				Contribution: 25,
				Source:       "analytics",
				Evidence:     "credit rating: " + rating,
			})
		} else if containsAny(rating, mediumRatings) {
			score += 15
			*factors = append(*factors, Factor{
				Category:     CategoryFinancial,
				Description:  "Speculative credit rating",
				Severity:     "high",
				Contribution: 15,
				Source:       "analytics",
				Evidence:     "credit rating: " + rating,
			})
		}
	}

	return min(limit, score)
}

// scandalKeywords are the hard-negative markers that outrank plain negative
// sentiment.
var scandalKeywords = []string{"скандал", "мошенничество", "обман", "уголовное дело"}

// reputationRisk scores web-search sentiment and scandal mentions.
func (s *Scorer) reputationRisk(ev Evidence, factors *[]Factor) int {
	limit := s.cfg.ReputationCap

	negative, scandals := 0, 0
	for _, snippet := range ev.Search {
		if snippet.Sentiment == models.SentimentNegative {
			negative++
		}
		text := strings.ToLower(snippet.Content)
		for _, kw := range scandalKeywords {
			if strings.Contains(text, kw) {
				scandals++
				break
			}
		}
	}

	switch {
	case scandals > 0:
		contribution := min(limit, 10+scandals*3)
		severity := "medium"
		if scandals >= 2 {
			severity = "high"
		}
		*factors = append(*factors, Factor{
			Category:     CategoryReputation,
			Description:  fmt.Sprintf("Scandal mentions found (%d)", scandals),
			Severity:     severity,
			Contribution: contribution,
			Source:       "search",
			Evidence:     fmt.Sprintf("%d scandal/fraud mentions in search results", scandals),
		})
		return contribution
	case negative > 3:
		*factors = append(*factors, Factor{
			Category:     CategoryReputation,
			Description:  fmt.Sprintf("Multiple negative mentions (%d)", negative),
			Severity:     "medium",
			Contribution: 15,
			Source:       "search",
			Evidence:     fmt.Sprintf("%d negative search results", negative),
		})
		return min(limit, 15)
	case negative > 0:
		*factors = append(*factors, Factor{
			Category:     CategoryReputation,
			Description:  fmt.Sprintf("Some negative mentions (%d)", negative),
			Severity:     "low",
			Contribution: 5,
			Source:       "search",
			Evidence:     fmt.Sprintf("%d negative search results", negative),
		})
		return min(limit, 5)
	default:
		*factors = append(*factors, Factor{
			Category:    CategoryReputation,
			Description: "Reputation neutral or positive",
			Severity:    "low",
			Source:      "search",
			Evidence:    "no negative mentions found",
		})
		return 0
	}
}

var (
	sanctionKeywords   = []string{"санкции", "санкционный", "ограничения", "запрет"}
	regulatoryKeywords = []string{"штраф", "нарушение", "проверка фнс", "проверка фас"}
)

// regulatoryRisk scores sanction and regulator-action mentions.
func (s *Scorer) regulatoryRisk(ev Evidence, factors *[]Factor) int {
	limit := s.cfg.SanctionsCap
	score := 0

	for _, snippet := range ev.Search {
		text := strings.ToLower(snippet.Content)

		for _, kw := range sanctionKeywords {
			if strings.Contains(text, kw) {
				score += 15
				*factors = append(*factors, Factor{
					Category:     CategoryRegulatory,
					Description:  "Sanction restrictions found",
					Severity:     "high",
					Contribution: 15,
					Source:       "search",
					Evidence:     "mention found: " + kw,
				})
				break
			}
		}
		for _, kw := range regulatoryKeywords {
			if strings.Contains(text, kw) {
				score += 5
				*factors = append(*factors, Factor{
					Category:     CategoryRegulatory,
					Description:  "Regulatory issues: " + kw,
					Severity:     "medium",
					Contribution: 5,
					Source:       "search",
					Evidence:     "mention found: " + kw,
				})
				break
			}
		}
	}

	if score == 0 {
		*factors = append(*factors, Factor{
			Category:    CategoryRegulatory,
			Description: "No regulatory issues found",
			Severity:    "low",
			Source:      "combined",
			Evidence:    "no sanctions or fines",
		})
	}
	return min(limit, score)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FactorDescriptions flattens factors to the plain strings stored on a
// report's risk assessment.
func FactorDescriptions(factors []Factor) []string {
	out := make([]string, 0, len(factors))
	for _, f := range factors {
		out = append(out, f.Description)
	}
	return out
}
