package scoring

import (
	"math"
	"strings"

	"github.com/riskradar/riskradar/pkg/models"
)

// Keyword lexicons for snippet sentiment. Substring matching over lowered
// text, so Russian stems ("банкрот" matches "банкротство") work without a
// morphology engine.
var (
	negativeWords = []string{
		"банкрот", "долг", "суд", "иск", "штраф", "нарушен", "проблем",
		"скандал", "мошен", "обман", "жалоб", "претензи", "убыт",
		"риск", "опасн", "негатив", "плох", "ухудш", "кризис",
	}
	positiveWords = []string{
		"рост", "прибыл", "успех", "надежн", "стабильн", "лидер",
		"качеств", "довольн", "рекоменд", "хорош", "отличн", "позитив",
		"развит", "инновац", "партнер", "доверие", "награ",
	}
)

// AnalyzeSentiment labels a text snippet by keyword lexicon. Deterministic;
// no LLM involved. Score is (pos-neg)/(pos+neg) in [-1,1]; labels flip at
// ±0.2.
func AnalyzeSentiment(text string) (models.Sentiment, float64) {
	if text == "" {
		return models.SentimentNeutral, 0
	}
	lower := strings.ToLower(text)

	neg, pos := 0, 0
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	total := neg + pos
	if total == 0 {
		return models.SentimentNeutral, 0
	}

	score := float64(pos-neg) / float64(total)
	score = math.Max(-1, math.Min(1, score))
	score = math.Round(score*100) / 100

	switch {
	case score > 0.2:
		return models.SentimentPositive, score
	case score < -0.2:
		return models.SentimentNegative, score
	default:
		return models.SentimentNeutral, score
	}
}
