package classify

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		display   string
		reasoning string
	}{
		{"plain", "hello world", "hello world", ""},
		{"empty", "", "", ""},
		{"well formed", "<think>A</think>B", "B", "A"},
		{"synonym markers", "◁think▷A◁/think▷B", "B", "A"},
		{"unterminated", "B<think>partial", "B", ""},
		{"unterminated synonym", "B◁think▷partial", "B", ""},
		{"multiple blocks", "<think>A</think>X<think>C</think>Y", "XY", "A\nC"},
		{"mixed spellings in order", "<think>A</think>X◁think▷C◁/think▷Y", "XY", "A\nC"},
		{"case insensitive", "<THINK>A</Think>B", "B", "A"},
		{"multiline reasoning", "<think>line1\nline2</think>\n\nanswer", "answer", "line1\nline2"},
		{"trims both channels", "  <think>  A  </think>  B  ", "B", "A"},
		{"closed then open", "<think>A</think>B<think>C", "B", "A"},
		{"open marker only", "<think>", "", ""},
		{"mismatched spellings never pair", "<think>A◁/think▷B", "", ""},
		{"other spelling does not close a block", "X<think>A◁/think▷B", "X", ""},
		{"synonym open with angle close", "X◁think▷A</think>B", "X", ""},
		{"closed block then other open", "<think>A</think>B◁think▷C", "B", "A"},
		{"stray synonym close before open", "A◁/think▷B<think>C", "A◁/think▷B", ""},
		{"text before and after", "pre <think>r</think> post", "pre  post", "r"},
		{"stray close marker is display", "A</think>B", "A</think>B", ""},
		{"empty block", "<think></think>B", "B", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.in)
			if got.Display != tc.display {
				t.Errorf("Display = %q, want %q", got.Display, tc.display)
			}
			if got.Reasoning != tc.reasoning {
				t.Errorf("Reasoning = %q, want %q", got.Reasoning, tc.reasoning)
			}
		})
	}
}

func TestClassify_SynonymsClassifyIdentically(t *testing.T) {
	a := Classify("◁think▷A◁/think▷B")
	b := Classify("<think>A</think>B")
	if a != b {
		t.Errorf("synonym markers differ: %+v vs %+v", a, b)
	}
}

func TestClassify_ReclassifyingDisplayIsStable(t *testing.T) {
	inputs := []string{
		"<think>A</think>B",
		"B<think>partial",
		"<think>A</think>X<think>C</think>Y",
		"<thi<think>x</think>nk>y</think>tail",
		"◁thi◁think▷x◁/think▷nk▷y◁/think▷z",
		"a</think>b<think>c",
		"x<think>a◁/think▷b",
		"◁think▷a</think><think>b</think>c",
		"  spaced  ",
		"no markers at all",
	}
	for _, in := range inputs {
		first := Classify(in)
		again := Classify(first.Display)
		if again.Display != first.Display {
			t.Errorf("%q: display changed on reclassify: %q -> %q", in, first.Display, again.Display)
		}
		if again.Reasoning != "" {
			t.Errorf("%q: reclassified display produced reasoning %q", in, again.Reasoning)
		}
		if twice := Classify(in); twice != first {
			t.Errorf("%q: not deterministic: %+v vs %+v", in, first, twice)
		}
	}
}

func TestClassify_NestedPairsRemovedToFixpoint(t *testing.T) {
	got := Classify("<thi<think>x</think>nk>y</think>tail")
	if got.Display != "tail" {
		t.Errorf("Display = %q, want %q", got.Display, "tail")
	}
	if got.Reasoning != "x\ny" {
		t.Errorf("Reasoning = %q, want %q", got.Reasoning, "x\ny")
	}
}

// Every prefix of a streamed response must keep reasoning text out of the
// display channel.
func TestAccumulator_NeverLeaksPartialReasoning(t *testing.T) {
	stream := "Intro <think>secret plan</think>Answer is 42. <think>more secret"
	var acc Accumulator
	for _, r := range stream {
		res := acc.Append(string(r))
		if strings.Contains(res.Display, "secret") {
			t.Fatalf("display leaked reasoning at %q: %q", acc.Text(), res.Display)
		}
		if strings.Contains(res.Display, "<think>") {
			t.Fatalf("display contains an open marker: %q", res.Display)
		}
	}
	final := acc.Result()
	if final.Display != "Intro Answer is 42." {
		t.Errorf("final Display = %q", final.Display)
	}
	if final.Reasoning != "secret plan" {
		t.Errorf("final Reasoning = %q", final.Reasoning)
	}
}

func TestAccumulator_FragmentSequence(t *testing.T) {
	var acc Accumulator
	fragments := []string{"<think>", "ok", "</think>", "hello"}
	want := []Result{
		{Display: "", Reasoning: ""},
		{Display: "", Reasoning: ""},
		{Display: "", Reasoning: "ok"},
		{Display: "hello", Reasoning: "ok"},
	}
	for i, f := range fragments {
		if got := acc.Append(f); got != want[i] {
			t.Errorf("after %q: got %+v, want %+v", f, got, want[i])
		}
	}
	if acc.Text() != "<think>ok</think>hello" {
		t.Errorf("Text() = %q", acc.Text())
	}
}

func TestAccumulator_MatchesWholeClassification(t *testing.T) {
	fragments := []string{"<thi", "nk>a", "b</th", "ink>c", "<think>", "d</think>", "e"}
	var acc Accumulator
	var whole strings.Builder
	for _, f := range fragments {
		whole.WriteString(f)
		if got, want := acc.Append(f), Classify(whole.String()); got != want {
			t.Fatalf("after %q: accumulator %+v != Classify %+v", whole.String(), got, want)
		}
	}
}
