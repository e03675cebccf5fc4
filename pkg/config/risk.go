package config

// RiskConfig holds the scoring weights, per-category caps, and level
// thresholds. Weights are fractions of the raw scale; caps are absolute
// points. The defaults are the calibrated production values and normally
// should not be overridden.
type RiskConfig struct {
	// Category weights (must sum to 1.0).
	LegalWeight      float64
	FinancialWeight  float64
	ReputationWeight float64
	SanctionsWeight  float64

	// Per-category point caps on the raw scale.
	LegalCap      int
	FinancialCap  int
	ReputationCap int
	SanctionsCap  int

	// Level thresholds on the 0..100 score.
	MediumThreshold   int
	HighThreshold     int
	CriticalThreshold int
}

// DefaultRiskConfig returns the calibrated scoring defaults.
func DefaultRiskConfig() *RiskConfig {
	return &RiskConfig{
		LegalWeight:      0.35,
		FinancialWeight:  0.30,
		ReputationWeight: 0.20,
		SanctionsWeight:  0.15,

		LegalCap:      40,
		FinancialCap:  30,
		ReputationCap: 20,
		SanctionsCap:  15,

		MediumThreshold:   25,
		HighThreshold:     50,
		CriticalThreshold: 75,
	}
}

// RawScale is the sum of the category caps; final scores are normalized
// from this scale to 0..100.
func (r *RiskConfig) RawScale() int {
	return r.LegalCap + r.FinancialCap + r.ReputationCap + r.SanctionsCap
}
