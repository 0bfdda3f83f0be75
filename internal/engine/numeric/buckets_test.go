package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfold/venue/internal/domain"
)

func bucketAnswers(t *testing.T, min, max float64, count int) []domain.Answer {
	t.Helper()
	ranges, err := BucketRanges(min, max, count)
	require.NoError(t, err)

	answers := make([]domain.Answer, len(ranges))
	for i, r := range ranges {
		answers[i] = domain.Answer{ID: string(rune('a' + i)), Index: i, Range: r}
	}
	return answers
}

func TestBucketRanges(t *testing.T) {
	ranges, err := BucketRanges(0, 100, 4)
	require.NoError(t, err)
	require.Len(t, ranges, 4)

	assert.Equal(t, 0.0, ranges[0].Lo)
	assert.Equal(t, 100.0, ranges[3].Hi)
	for i := 1; i < len(ranges); i++ {
		assert.Equal(t, ranges[i-1].Hi, ranges[i].Lo, "buckets must be contiguous")
	}
	assert.InDelta(t, 12.5, ranges[0].Mid(), 1e-12)
}

func TestBucketRanges_Rejects(t *testing.T) {
	_, err := BucketRanges(10, 10, 4)
	assert.True(t, domain.IsValidation(err))

	_, err = BucketRanges(0, 100, 1)
	assert.True(t, domain.IsValidation(err))
}

func TestAnswerIDs_Thresholds(t *testing.T) {
	answers := bucketAnswers(t, 0, 100, 4) // a:[0,25] b:[25,50] c:[50,75] d:[75,100]

	cases := []struct {
		name  string
		mode  Mode
		value float64
		want  []string
	}{
		{"less than mid", ModeLessThan, 60, []string{"a", "b", "c"}},
		{"less than includes straddling bucket", ModeLessThan, 25, []string{"a", "b"}},
		{"more than mid", ModeMoreThan, 60, []string{"c", "d"}},
		{"more than boundary", ModeMoreThan, 75, []string{"c", "d"}},
		{"about right inside bucket", ModeAboutRight, 30, []string{"b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AnswerIDs(answers, tc.mode, tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAnswerIDs_Rejects(t *testing.T) {
	answers := bucketAnswers(t, 0, 100, 4)

	_, err := AnswerIDs(answers, Mode("sideways"), 50)
	assert.True(t, domain.IsValidation(err))
}

func TestAboutRightWindow_SnapsBetweenBuckets(t *testing.T) {
	// Non-contiguous buckets: a value in the gap spans the neighbors.
	answers := []domain.Answer{
		{ID: "a", Index: 0, Range: domain.NumericRange{Lo: 0, Hi: 10}},
		{ID: "b", Index: 1, Range: domain.NumericRange{Lo: 20, Hi: 30}},
	}

	lo, hi := AboutRightWindow(answers, 15)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 30.0, hi)

	lo, hi = AboutRightWindow(answers, 5)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 10.0, hi)
}

func TestExpectedValue(t *testing.T) {
	answers := bucketAnswers(t, 0, 100, 4)
	for i := range answers {
		answers[i].Probability = 0.25
	}
	assert.InDelta(t, 50, ExpectedValue(answers), 1e-9)

	// Skew toward the top bucket.
	answers[3].Probability = 0.7
	answers[0].Probability = 0.05
	answers[1].Probability = 0.1
	answers[2].Probability = 0.15
	// 0.05*12.5 + 0.1*37.5 + 0.15*62.5 + 0.7*87.5 = 75
	assert.InDelta(t, 75, ExpectedValue(answers), 1e-9)

	// Unnormalized probabilities do not bias the estimate.
	for i := range answers {
		answers[i].Probability *= 2
	}
	assert.InDelta(t, 75, ExpectedValue(answers), 1e-9)

	assert.InDelta(t, 50, ExpectedValue(bucketAnswers(t, 0, 100, 4)), 1e-9)
}
