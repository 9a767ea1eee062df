// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// suggestionThreshold is the largest edit distance still offered as a
// "did you mean" candidate. Three edits covers transpositions, dropped
// characters, and doubled characters without proposing unrelated names.
const suggestionThreshold = 3

// suggestCommand returns the subcommand name closest to the unknown
// input, or "" when nothing is within the suggestion threshold.
func suggestCommand(unknown string, commands []*Command) string {
	names := make([]string, len(commands))
	for i, command := range commands {
		names[i] = command.Name
	}
	return closestMatch(unknown, names)
}

// suggestFlag finds the first unrecognized flag in args and returns the
// closest defined flag, formatted with its dash prefix ("--store" or
// "-v"). Returns "" when no defined flag is close enough.
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	var defined []string
	flagSet.VisitAll(func(f *pflag.Flag) {
		defined = append(defined, f.Name)
	})

	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if i := strings.IndexByte(name, '='); i >= 0 {
			name = name[:i]
		}
		if flagSet.Lookup(name) != nil {
			continue
		}

		// The first unrecognized flag decides the suggestion.
		match := closestMatch(name, defined)
		switch {
		case match == "":
			return ""
		case len(match) == 1:
			return "-" + match
		default:
			return "--" + match
		}
	}

	return ""
}

// closestMatch returns the candidate with the smallest edit distance to
// input, or "" when every candidate is beyond the suggestion threshold.
func closestMatch(input string, candidates []string) string {
	best := ""
	bestDistance := suggestionThreshold + 1
	for _, candidate := range candidates {
		if distance := editDistance(input, candidate); distance < bestDistance {
			bestDistance = distance
			best = candidate
		}
	}
	return best
}

// editDistance computes the Levenshtein distance between a and b: the
// number of single-character insertions, deletions, and substitutions
// needed to turn one string into the other.
func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	// Two rows of the distance matrix, swapped each iteration.
	previous := make([]int, len(a)+1)
	current := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}

	for j := 1; j <= len(b); j++ {
		current[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[i] = min(previous[i]+1, current[i-1]+1, previous[i-1]+cost)
		}
		previous, current = current, previous
	}

	return previous[len(a)]
}
