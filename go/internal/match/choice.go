package match

import (
	"fmt"
	"math/rand"
	"strings"
)

// Choice is a symbol a participant commits to for one round.
type Choice string

const (
	ChoiceUnset    Choice = ""
	ChoiceRock     Choice = "rock"
	ChoicePaper    Choice = "paper"
	ChoiceScissors Choice = "scissors"
)

// Choices lists every valid symbol.
var Choices = []Choice{ChoiceRock, ChoicePaper, ChoiceScissors}

// beats maps each symbol to the one it defeats.
var beats = map[Choice]Choice{
	ChoiceRock:     ChoiceScissors,
	ChoiceScissors: ChoicePaper,
	ChoicePaper:    ChoiceRock,
}

// choiceAliases accepts the symbols sent by the Hungarian web client.
var choiceAliases = map[string]Choice{
	"rock":     ChoiceRock,
	"paper":    ChoicePaper,
	"scissors": ChoiceScissors,
	"kő":       ChoiceRock,
	"papír":    ChoicePaper,
	"olló":     ChoiceScissors,
}

// ParseChoice normalizes client input into a Choice.
func ParseChoice(s string) (Choice, error) {
	c, ok := choiceAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return ChoiceUnset, fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
	return c, nil
}

// Valid reports whether c is one of the three playable symbols.
func (c Choice) Valid() bool {
	_, ok := beats[c]
	return ok
}

// RandomChoice picks a symbol uniformly at random.
func RandomChoice(rng *rand.Rand) Choice {
	return Choices[rng.Intn(len(Choices))]
}

// Verdict is the result of a round from the first participant's perspective.
type Verdict int

const (
	Draw Verdict = iota
	FirstWins
	SecondWins
)

// Resolve decides a round between two valid choices.
func Resolve(first, second Choice) Verdict {
	switch {
	case first == second:
		return Draw
	case beats[first] == second:
		return FirstWins
	default:
		return SecondWins
	}
}

// Invert returns the same verdict seen from the other participant.
func (v Verdict) Invert() Verdict {
	switch v {
	case FirstWins:
		return SecondWins
	case SecondWins:
		return FirstWins
	default:
		return Draw
	}
}

// Outcome is the per-participant text pushed with a result.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Outcome renders the verdict for the first participant.
func (v Verdict) Outcome() Outcome {
	switch v {
	case FirstWins:
		return OutcomeWin
	case SecondWins:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

func (v Verdict) String() string {
	switch v {
	case FirstWins:
		return "first_wins"
	case SecondWins:
		return "second_wins"
	default:
		return "draw"
	}
}
