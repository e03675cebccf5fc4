package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/riskradar/riskradar/pkg/models"
)

func TestAnalyzeSentiment(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		label models.Sentiment
	}{
		{"empty", "", models.SentimentNeutral},
		{"no keywords", "компания зарегистрирована в Москве", models.SentimentNeutral},
		{"positive", "стабильный рост и прибыль, надежный партнер", models.SentimentPositive},
		{"negative", "банкротство, долги и штрафы", models.SentimentNegative},
		{"mixed balances out", "рост выручки, но есть долг", models.SentimentNeutral},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			label, score := AnalyzeSentiment(tc.text)
			assert.Equal(t, tc.label, label)
			assert.GreaterOrEqual(t, score, -1.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestAnalyzeSentimentScoreIsRatio(t *testing.T) {
	// Two positive stems, one negative stem: (2-1)/3 = 0.33.
	_, score := AnalyzeSentiment("рост и успех, несмотря на иск")
	assert.InDelta(t, 0.33, score, 0.001)
}

func TestAnalyzeSentimentDeterministic(t *testing.T) {
	text := "скандал вокруг надежного поставщика"
	l1, s1 := AnalyzeSentiment(text)
	for i := 0; i < 5; i++ {
		l2, s2 := AnalyzeSentiment(text)
		assert.Equal(t, l1, l2)
		assert.Equal(t, s1, s2)
	}
}
