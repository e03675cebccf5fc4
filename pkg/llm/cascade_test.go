package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskradar/riskradar/pkg/errkind"
)

// fakeProvider scripts a sequence of responses; each Generate call consumes
// one.
type fakeProvider struct {
	name       string
	configured bool
	responses  []string
	errs       []error
	calls      int
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) Generate(_ context.Context, _ string, _ Params) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var out string
	if i < len(f.responses) {
		out = f.responses[i]
	}
	return out, err
}

type testReport struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

func TestGenerateTextUsesFirstConfiguredProvider(t *testing.T) {
	first := &fakeProvider{name: "first", configured: true, responses: []string{"hello"}}
	second := &fakeProvider{name: "second", configured: true, responses: []string{"unused"}}

	c := NewCascadeWith(first, second)
	content, meta, err := c.GenerateText(context.Background(), "prompt", Params{})
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
	assert.Equal(t, "first", meta.Provider)
	assert.Zero(t, meta.FallbackDepth)
	assert.Zero(t, second.calls)
}

func TestGenerateTextFallsThroughOnFailure(t *testing.T) {
	first := &fakeProvider{name: "first", configured: true, errs: []error{errors.New("boom")}}
	skipped := &fakeProvider{name: "skipped", configured: false}
	third := &fakeProvider{name: "third", configured: true, responses: []string{"recovered"}}

	c := NewCascadeWith(first, skipped, third)
	content, meta, err := c.GenerateText(context.Background(), "prompt", Params{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", content)
	assert.Equal(t, "third", meta.Provider)
	// Unconfigured providers do not count toward fallback depth.
	assert.Equal(t, 1, meta.FallbackDepth)
	assert.Zero(t, skipped.calls)
}

func TestGenerateTextExhaustionIsLLMUnavailable(t *testing.T) {
	first := &fakeProvider{name: "first", configured: true, errs: []error{errors.New("a")}}
	second := &fakeProvider{name: "second", configured: true, errs: []error{errors.New("b")}}

	c := NewCascadeWith(first, second)
	_, _, err := c.GenerateText(context.Background(), "prompt", Params{})
	require.Error(t, err)
	assert.Equal(t, errkind.LLMUnavailable, errkind.KindOf(err))
}

func TestGenerateJSONRepairsOncePerProvider(t *testing.T) {
	p := &fakeProvider{
		name:       "flaky",
		configured: true,
		responses: []string{
			"Sure! Here is the report: not json at all",
			"```json\n{\"score\": 42, \"summary\": \"ok\"}\n```",
		},
	}

	c := NewCascadeWith(p)
	var out testReport
	meta, err := c.GenerateJSON(context.Background(), "prompt", Params{}, &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Score)
	assert.True(t, meta.Repaired)
	assert.Equal(t, 2, p.calls)
}

func TestGenerateJSONFallsThroughAfterFailedRepair(t *testing.T) {
	bad := &fakeProvider{
		name:       "bad",
		configured: true,
		responses:  []string{"garbage", "still garbage"},
	}
	good := &fakeProvider{
		name:       "good",
		configured: true,
		responses:  []string{`{"score": 7, "summary": "fine"}`},
	}

	c := NewCascadeWith(bad, good)
	var out testReport
	meta, err := c.GenerateJSON(context.Background(), "prompt", Params{}, &out, nil)
	require.NoError(t, err)
	assert.Equal(t, "good", meta.Provider)
	assert.Equal(t, 1, meta.FallbackDepth)
	assert.Equal(t, 7, out.Score)
	assert.Equal(t, 2, bad.calls) // original + one repair, never a third
}

func TestGenerateJSONValidationFailureTriggersRepair(t *testing.T) {
	p := &fakeProvider{
		name:       "p",
		configured: true,
		responses: []string{
			`{"score": -1, "summary": ""}`,
			`{"score": 10, "summary": "valid"}`,
		},
	}

	c := NewCascadeWith(p)
	var out testReport
	validate := func() error {
		if out.Score < 0 || out.Summary == "" {
			return errors.New("invalid report")
		}
		return nil
	}
	meta, err := c.GenerateJSON(context.Background(), "prompt", Params{}, &out, validate)
	require.NoError(t, err)
	assert.True(t, meta.Repaired)
	assert.Equal(t, 10, out.Score)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"fenced json", "text\n```json\n{\"a\":1}\n```\ntrailer", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"embedded object", `The answer is {"a": 1} as requested.`, `{"a": 1}`},
		{"bare json", `{"a":1}`, `{"a":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSON(tc.in))
		})
	}
}

func TestConfiguredCount(t *testing.T) {
	c := NewCascadeWith(
		&fakeProvider{configured: true},
		&fakeProvider{configured: false},
		&fakeProvider{configured: true},
	)
	assert.Equal(t, 2, c.ConfiguredCount())
}
