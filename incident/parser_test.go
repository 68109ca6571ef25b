package incident

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPayload = `[{"category": "Network", "severity": "High", "count": 3, "examples": ["router down"]}]`

// countingRepair returns a RepairFunc that records invocations and replies
// from the given sequence, repeating the last reply once exhausted.
func countingRepair(calls *int, replies ...string) RepairFunc {
	return func(_ context.Context, instruction string) (string, error) {
		*calls++
		i := *calls - 1
		if i >= len(replies) {
			i = len(replies) - 1
		}
		return replies[i], nil
	}
}

func TestParseValidFirstTry(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "bare array", raw: validPayload},
		{name: "fenced array", raw: "```json\n" + validPayload + "\n```"},
		{name: "fence without tag", raw: "```\n" + validPayload + "\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			summary, err := Parse(context.Background(), tt.raw, countingRepair(&calls, validPayload))
			require.NoError(t, err)
			require.Len(t, summary, 1)
			assert.Equal(t, "Network", summary[0].Category)
			assert.Equal(t, 0, calls, "valid input must not invoke the repair callback")
		})
	}
}

func TestParseRepairsInvalidPayload(t *testing.T) {
	calls := 0
	invalid := `[{"category": "Network", "severity": "High", "count": 3, "examples": [], "extra": true}]`

	summary, err := Parse(context.Background(), invalid, countingRepair(&calls, validPayload))
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 1, calls)
}

func TestParseExhaustsAfterBound(t *testing.T) {
	calls := 0
	invalid := `not json at all`

	_, err := Parse(context.Background(), invalid, countingRepair(&calls, invalid))
	require.Error(t, err)
	assert.True(t, IsRepairExhausted(err))
	assert.False(t, IsCallbackFailure(err))

	// Default bound: 2 repairs, 3 validation tries.
	var exhausted *RepairExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Tries)
	assert.Equal(t, 2, calls)
}

func TestParseCustomBound(t *testing.T) {
	calls := 0
	_, err := Parse(context.Background(), "bad", countingRepair(&calls, "still bad"), WithMaxRepairs(5))
	require.Error(t, err)

	var exhausted *RepairExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 6, exhausted.Tries)
	assert.Equal(t, 5, calls)
}

func TestParseZeroRepairs(t *testing.T) {
	calls := 0
	_, err := Parse(context.Background(), "bad", countingRepair(&calls, validPayload), WithMaxRepairs(0))
	require.Error(t, err)
	assert.True(t, IsRepairExhausted(err))
	assert.Equal(t, 0, calls, "zero repairs means the callback is never invoked")
}

func TestParseCallbackFailurePropagates(t *testing.T) {
	boom := errors.New("connection reset")
	repair := func(context.Context, string) (string, error) {
		return "", boom
	}

	_, err := Parse(context.Background(), "bad", repair)
	require.Error(t, err)
	assert.True(t, IsCallbackFailure(err))
	assert.False(t, IsRepairExhausted(err))
	assert.ErrorIs(t, err, boom)
}

func TestParseInstructionText(t *testing.T) {
	var got string
	repair := func(_ context.Context, instruction string) (string, error) {
		got = instruction
		return validPayload, nil
	}

	_, err := Parse(context.Background(), "bad", repair)
	require.NoError(t, err)
	assert.Contains(t, got, "invalid JSON")
	assert.Contains(t, got, "schema mismatch")
	assert.Contains(t, got, "JSON array")
	assert.Contains(t, got, "markdown")
}

func TestParseDeterministic(t *testing.T) {
	// Same input, same canned callback: same terminal state and try count.
	run := func() (int, error) {
		calls := 0
		_, err := Parse(context.Background(), "bad", countingRepair(&calls, "also bad"))
		return calls, err
	}

	calls1, err1 := run()
	calls2, err2 := run()
	assert.Equal(t, calls1, calls2)
	assert.Equal(t, IsRepairExhausted(err1), IsRepairExhausted(err2))
}

func TestTryParse(t *testing.T) {
	summary, ok := TryParse(context.Background(), validPayload, nil)
	require.True(t, ok)
	assert.Len(t, summary, 1)

	_, ok = TryParse(context.Background(), "prose only", countingRepair(new(int), "still prose"))
	assert.False(t, ok)
}

func TestParseRecoversFencedRepairReply(t *testing.T) {
	// The repair reply itself may arrive wrapped in fences; the next cycle
	// strips them again.
	calls := 0
	reply := "```json\n" + validPayload + "\n```"
	summary, err := Parse(context.Background(), "bad", countingRepair(&calls, reply))
	require.NoError(t, err)
	assert.Len(t, summary, 1)
	assert.Equal(t, 1, calls)
}

func TestParseWhitespaceOnlyInput(t *testing.T) {
	_, err := Parse(context.Background(), strings.Repeat(" \n", 4), countingRepair(new(int), " "))
	require.Error(t, err)
	assert.True(t, IsRepairExhausted(err))
	assert.ErrorIs(t, err, ErrMalformedJSON)
}
