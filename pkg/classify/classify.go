// Package classify splits accumulated model output into a display channel
// and a reasoning channel delimited by think markers.
//
// Two marker spellings are accepted as synonyms: <think>...</think> and
// ◁think▷...◁/think▷. Matching is case-insensitive and non-greedy. A block
// must open and close with the same spelling.
package classify

import (
	"regexp"
	"strings"
)

// Result is the classification of one accumulated text.
type Result struct {
	Display   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

var (
	// Closed pairs of either spelling. Group 1 or 2 holds the inner text.
	pairRe = regexp.MustCompile(`(?is)<think>(.*?)</think>|◁think▷(.*?)◁/think▷`)

	spellings = []struct{ open, close *regexp.Regexp }{
		{regexp.MustCompile(`(?i)<think>`), regexp.MustCompile(`(?i)</think>`)},
		{regexp.MustCompile(`(?i)◁think▷`), regexp.MustCompile(`(?i)◁/think▷`)},
	}
)

// Classify derives display and reasoning text from the full accumulated
// output. It is pure: the result depends only on accumulated, so it can be
// called after every fragment.
func Classify(accumulated string) Result {
	var reasoning []string
	display := accumulated

	// Removing one pair can join text into a new pair (e.g.
	// "<thi<think>x</think>nk>y</think>"); repeat until nothing matches so the
	// display text never contains a closed pair and reclassifying it is a
	// no-op.
	for {
		matches := pairRe.FindAllStringSubmatchIndex(display, -1)
		if len(matches) == 0 {
			break
		}
		var b strings.Builder
		last := 0
		for _, m := range matches {
			b.WriteString(display[last:m[0]])
			switch {
			case m[2] >= 0:
				reasoning = append(reasoning, display[m[2]:m[3]])
			case m[4] >= 0:
				reasoning = append(reasoning, display[m[4]:m[5]])
			}
			last = m[1]
		}
		b.WriteString(display[last:])
		display = b.String()
	}

	display = withholdOpenBlock(display)

	return Result{
		Display:   strings.TrimSpace(display),
		Reasoning: strings.TrimSpace(strings.Join(reasoning, "\n")),
	}
}

// withholdOpenBlock truncates display at the earliest open marker that has
// no later close marker of its own spelling, hiding a reasoning block that is
// still streaming.
func withholdOpenBlock(display string) string {
	cut := len(display)
	for _, sp := range spellings {
		from := 0
		if closes := sp.close.FindAllStringIndex(display, -1); len(closes) > 0 {
			from = closes[len(closes)-1][1]
		}
		if loc := sp.open.FindStringIndex(display[from:]); loc != nil && from+loc[0] < cut {
			cut = from + loc[0]
		}
	}
	return display[:cut]
}

// Accumulator owns the running text of one turn and reclassifies it from
// scratch after every fragment. It is not safe for concurrent use.
type Accumulator struct {
	buf  strings.Builder
	last Result
}

// Append adds fragment to the buffer and returns the fresh classification.
func (a *Accumulator) Append(fragment string) Result {
	a.buf.WriteString(fragment)
	a.last = Classify(a.buf.String())
	return a.last
}

// Text returns the raw accumulated text.
func (a *Accumulator) Text() string { return a.buf.String() }

// Result returns the classification after the most recent Append.
func (a *Accumulator) Result() Result { return a.last }
