package slaybot

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func TestRollDice(t *testing.T) {
	t.Parallel()

	t.Run(
		"valid", func(t *testing.T) {
			t.Parallel()
			result := rollDice(testRNG(), "5d6")
			rolls := strings.Split(result, ", ")
			require.Len(t, rolls, 5)
			for _, roll := range rolls {
				n, err := strconv.Atoi(roll)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, n, 1)
				assert.LessOrEqual(t, n, 6)
			}
		},
	)

	t.Run(
		"one-sided dice always roll one", func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, "1, 1, 1", rollDice(testRNG(), "3d1"))
		},
	)

	t.Run(
		"bad formats", func(t *testing.T) {
			t.Parallel()
			for _, input := range []string{
				"",
				"banana",
				"3x6",
				"d6",
				"3d",
				"3d6d9",
				"-1d6",
				"3d0",
				"1.5d6",
			} {
				assert.Equal(
					t,
					rollFormatNotice,
					rollDice(testRNG(), input),
					"input: %q",
					input,
				)
			}
		},
	)

	t.Run(
		"overlong result", func(t *testing.T) {
			t.Parallel()
			assert.Equal(
				t,
				rollLengthNotice,
				rollDice(testRNG(), "2000d6"),
			)
		},
	)
}

func TestChooseOption(t *testing.T) {
	t.Parallel()

	choices := []string{"red", "green", "blue"}
	picked := chooseOption(testRNG(), choices)
	assert.Contains(t, choices, picked)

	assert.Equal(t, chooseEmptyNotice, chooseOption(testRNG(), nil))
	assert.Equal(t, "only", chooseOption(testRNG(), []string{"only"}))
}

func TestTurtleOutcome(t *testing.T) {
	t.Parallel()
	assert.Contains(t, turtleOutcomes, turtleOutcome(testRNG()))
}

func TestR8(t *testing.T) {
	t.Parallel()
	result := r8(testRNG(), "this test")
	assert.True(t, strings.HasPrefix(result, "i r8 this test "))
	assert.True(t, strings.HasSuffix(result, "/8 m8"))

	rating := strings.TrimSuffix(
		strings.TrimPrefix(result, "i r8 this test "),
		"/8 m8",
	)
	n, err := strconv.Atoi(rating)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 0)
	assert.LessOrEqual(t, n, 8)
}

func TestHowMeasure(t *testing.T) {
	t.Parallel()

	t.Run(
		"usage error without a splitter", func(t *testing.T) {
			t.Parallel()
			assert.Equal(
				t,
				howUsageNotice,
				howMeasure(testRNG(), "no verbs here"),
			)
		},
	)

	t.Run(
		"flips adjective and subject", func(t *testing.T) {
			t.Parallel()
			result := howMeasure(testRNG(), "cool is this bot")
			assert.True(
				t,
				strings.HasPrefix(result, "this bot is "),
				"result: %q",
				result,
			)
			assert.True(
				t,
				strings.HasSuffix(result, "% cool"),
				"result: %q",
				result,
			)
		},
	)

	t.Run(
		"is wins over was", func(t *testing.T) {
			t.Parallel()
			result := howMeasure(testRNG(), "bad was the idea is here")
			assert.Contains(t, result, " is ")
			assert.True(
				t,
				strings.HasPrefix(result, "here"),
				"result: %q",
				result,
			)
		},
	)

	t.Run(
		"secondary splitter keeps trailing clause", func(t *testing.T) {
			t.Parallel()
			result := howMeasure(
				testRNG(),
				"cool is the name of that band",
			)
			assert.True(
				t,
				strings.HasPrefix(result, "the name is "),
				"result: %q",
				result,
			)
			assert.True(
				t,
				strings.HasSuffix(result, "% cool of that band"),
				"result: %q",
				result,
			)
		},
	)
}

func TestClapSentence(t *testing.T) {
	t.Parallel()
	assert.Equal(
		t,
		"claps 👏 are 👏 necessary 👏",
		clapSentence("claps are necessary"),
	)
	assert.Equal(t, "one 👏", clapSentence("one"))
	assert.Equal(t, " 👏", clapSentence(""))
	assert.Equal(
		t,
		"spaced 👏 out 👏",
		clapSentence("  spaced   out  "),
	)
}

func TestMockSentence(t *testing.T) {
	t.Parallel()
	input := "because people say stupid shit"
	result := mockSentence(testRNG(), input)

	assert.Equal(t, strings.ToLower(input), strings.ToLower(result))
	assert.Len(t, result, len(input))
}

func TestBoxArt(t *testing.T) {
	t.Parallel()

	t.Run(
		"too short", func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, boxEmptyNotice, boxArt(""))
			assert.Equal(t, boxEmptyNotice, boxArt("x"))
		},
	)

	t.Run(
		"draws the sentence on each edge", func(t *testing.T) {
			t.Parallel()
			sentence := "boxes"
			result := boxArt(sentence)

			assert.True(t, strings.HasPrefix(result, "```\n"))
			assert.True(t, strings.HasSuffix(result, "\n```"))

			lines := strings.Split(
				strings.TrimSuffix(
					strings.TrimPrefix(result, "```\n"),
					"\n```",
				),
				"\n",
			)
			// 5 runes, odd length: one diagonal row, 7x7 grid
			require.Len(t, lines, 7)

			spaced := strings.Join(strings.Split(sentence, ""), " ")
			reversed := "s e x o b"
			assert.Equal(t, spaced, lines[0])
			assert.True(
				t,
				strings.HasSuffix(lines[len(lines)-1], reversed),
				"last line: %q",
				lines[len(lines)-1],
			)
			assert.Contains(t, result, "╲")
		},
	)
}
