package domain

import (
	"testing"
	"time"
)

func TestParseInterviewID(t *testing.T) {
	id, err := ParseInterviewID("  6BA7B810-9DAD-11D1-80B4-00C04FD430C8 ")
	if err != nil {
		t.Fatalf("expected valid id, got error: %v", err)
	}
	if id != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Fatalf("expected canonical lowercase id, got %q", id)
	}

	for _, raw := range []string{"", "   ", "not-a-uuid", "12345"} {
		if _, err := ParseInterviewID(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{StateQueued, StateProcessing},
		{StateProcessing, StateCompleted},
		{StateProcessing, StateFailed},
		{StateProcessing, StateProcessing},
	}
	for _, edge := range allowed {
		if !CanTransition(edge[0], edge[1]) {
			t.Errorf("expected %s -> %s to be allowed", edge[0], edge[1])
		}
	}

	denied := [][2]string{
		{StateQueued, StateCompleted},
		{StateQueued, StateFailed},
		{StateCompleted, StateProcessing},
		{StateCompleted, StateFailed},
		{StateFailed, StateProcessing},
		{StateFailed, StateCompleted},
	}
	for _, edge := range denied {
		if CanTransition(edge[0], edge[1]) {
			t.Errorf("expected %s -> %s to be denied", edge[0], edge[1])
		}
	}
}

func TestQuestionRecordIDIsDeterministic(t *testing.T) {
	const interviewID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

	a := QuestionRecordID(interviewID, 0, "Tell me about yourself.")
	b := QuestionRecordID(interviewID, 0, "Tell me about yourself.")
	if a != b {
		t.Fatalf("expected identical ids for identical items, got %q and %q", a, b)
	}

	if QuestionRecordID(interviewID, 1, "Tell me about yourself.") == a {
		t.Fatal("expected different ordinal to produce a different id")
	}
	if QuestionRecordID(interviewID, 0, "Why this company?") == a {
		t.Fatal("expected different question to produce a different id")
	}
}

func TestTranscriptFullText(t *testing.T) {
	tr := Transcript{Utterances: []Utterance{
		{Speaker: "spk_0", Start: 0, End: 2 * time.Second, Text: "Welcome."},
		{Speaker: "spk_1", Start: 2 * time.Second, End: 4 * time.Second, Text: "  "},
		{Speaker: "spk_1", Start: 4 * time.Second, End: 8 * time.Second, Text: "Thanks for having me."},
	}}

	want := "spk_0: Welcome.\nspk_1: Thanks for having me."
	if got := tr.FullText(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if tr.Empty() {
		t.Fatal("transcript with text should not be empty")
	}

	if !(Transcript{Utterances: []Utterance{{Text: "   "}}}).Empty() {
		t.Fatal("whitespace-only transcript should be empty")
	}
}

func TestCreateInterviewRequestValidate(t *testing.T) {
	valid := CreateInterviewRequest{OwnerID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	if err := (CreateInterviewRequest{}).Validate(); err == nil {
		t.Fatal("expected validation error for missing owner_id")
	}
	if err := (CreateInterviewRequest{OwnerID: "someone"}).Validate(); err == nil {
		t.Fatal("expected validation error for non-UUID owner_id")
	}
}
