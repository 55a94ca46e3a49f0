package match

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	testCases := []struct {
		first, second Choice
		want          Verdict
	}{
		{ChoiceRock, ChoiceScissors, FirstWins},
		{ChoiceScissors, ChoicePaper, FirstWins},
		{ChoicePaper, ChoiceRock, FirstWins},
		{ChoiceScissors, ChoiceRock, SecondWins},
		{ChoicePaper, ChoiceScissors, SecondWins},
		{ChoiceRock, ChoicePaper, SecondWins},
		{ChoiceRock, ChoiceRock, Draw},
		{ChoicePaper, ChoicePaper, Draw},
		{ChoiceScissors, ChoiceScissors, Draw},
	}

	for _, tc := range testCases {
		t.Run(string(tc.first)+"_vs_"+string(tc.second), func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.first, tc.second))
		})
	}
}

func TestResolve_Antisymmetric(t *testing.T) {
	for _, a := range Choices {
		for _, b := range Choices {
			assert.Equal(t, Resolve(a, b).Invert(), Resolve(b, a), "%s vs %s", a, b)
		}
	}
}

func TestVerdict_Outcome(t *testing.T) {
	assert.Equal(t, OutcomeWin, FirstWins.Outcome())
	assert.Equal(t, OutcomeLoss, SecondWins.Outcome())
	assert.Equal(t, OutcomeDraw, Draw.Outcome())
	assert.Equal(t, OutcomeLoss, FirstWins.Invert().Outcome())
	assert.Equal(t, Draw, Draw.Invert())
}

func TestParseChoice(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    Choice
		wantErr bool
	}{
		{name: "rock", input: "rock", want: ChoiceRock},
		{name: "mixed case with spaces", input: "  Paper ", want: ChoicePaper},
		{name: "scissors", input: "scissors", want: ChoiceScissors},
		{name: "hungarian rock", input: "kő", want: ChoiceRock},
		{name: "hungarian paper", input: "papír", want: ChoicePaper},
		{name: "hungarian scissors", input: "olló", want: ChoiceScissors},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown symbol", input: "lizard", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseChoice(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidChoice)
				assert.Equal(t, ChoiceUnset, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestChoice_Valid(t *testing.T) {
	for _, c := range Choices {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, ChoiceUnset.Valid())
	assert.False(t, Choice("kő").Valid())
}

func TestRandomChoice(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	seen := make(map[Choice]bool)
	for i := 0; i < 200; i++ {
		c := RandomChoice(rng)
		require.True(t, c.Valid())
		seen[c] = true
	}
	assert.Len(t, seen, len(Choices))
}
