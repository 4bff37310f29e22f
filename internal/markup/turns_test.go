package markup

import (
	"reflect"
	"testing"
)

func TestExtractTurnsDialogue(t *testing.T) {
	turns := ExtractTurns("<Person1>A</Person1><Person2>B</Person2>", dialogueTags)
	want := []Turn{{Speaker: "Person1", Text: "A"}, {Speaker: "Person2", Text: "B"}}
	if !reflect.DeepEqual(turns, want) {
		t.Fatalf("expected %v, got %v", want, turns)
	}
}

func TestExtractTurnsKeepsDocumentOrder(t *testing.T) {
	in := "<Person2>first</Person2> noise <Person2>second</Person2>\n<Person1> third\nline </Person1>"
	turns := ExtractTurns(in, dialogueTags)
	want := []Turn{
		{Speaker: "Person2", Text: "first"},
		{Speaker: "Person2", Text: "second"},
		{Speaker: "Person1", Text: "third\nline"},
	}
	if !reflect.DeepEqual(turns, want) {
		t.Fatalf("expected %v, got %v", want, turns)
	}
	if v := Alternates(turns); !reflect.DeepEqual(v, []int{1}) {
		t.Fatalf("expected violation at index 1, got %v", v)
	}
}

func TestExtractTurnsMonologue(t *testing.T) {
	turns := ExtractTurns("<Speaker>One.</Speaker> <Speaker>Two.</Speaker>", []string{"Speaker"})
	if len(turns) != 2 || turns[0].Speaker != "Speaker" || turns[1].Text != "Two." {
		t.Fatalf("unexpected turns %v", turns)
	}
	pairs := Pairs(turns, []string{"Speaker"})
	want := []Pair{{Question: "One."}, {Question: "Two."}}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("expected %v, got %v", want, pairs)
	}
}

func TestPairsDialogue(t *testing.T) {
	turns := []Turn{
		{Speaker: "Person1", Text: "q1"},
		{Speaker: "Person2", Text: "a1"},
		{Speaker: "Person2", Text: "a2"},
		{Speaker: "Person1", Text: "q2"},
	}
	got := Pairs(turns, dialogueTags)
	want := []Pair{{Question: "q1", Answer: "a1"}, {Answer: "a2"}, {Question: "q2"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLastSpeaker(t *testing.T) {
	cases := map[string]string{
		"":                                        "",
		"no tags here":                            "",
		"<Person1>hi</Person1>":                   "Person1",
		"<Person1>hi</Person1> <Person2>open end": "Person2",
	}
	for in, want := range cases {
		if got := LastSpeaker(in, dialogueTags); got != want {
			t.Fatalf("LastSpeaker(%q) = %q, want %q", in, got, want)
		}
	}
}
