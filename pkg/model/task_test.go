package model

import "testing"

func TestWeight(t *testing.T) {
	cases := map[Priority]int{
		PriorityA:         1,
		PriorityB:         5,
		PriorityBlocked:   5,
		PriorityC:         9,
		PriorityScheduled: 9,
		PriorityNone:      9,
	}
	for p, want := range cases {
		if got := Weight(p); got != want {
			t.Errorf("Weight(%q) = %d, want %d", p, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	ok := Task{Fingerprint: "abc", RawText: "x", Line: 3, Category: "Personal"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	bad := ok
	bad.Line = 0
	if err := bad.Validate(); err == nil {
		t.Errorf("Expected error for line 0")
	}

	bad = ok
	bad.Fingerprint = ""
	if err := bad.Validate(); err == nil {
		t.Errorf("Expected error for empty fingerprint")
	}
}

func TestPriorityLabel(t *testing.T) {
	task := Task{Priority: PriorityA, PriorityNumber: "2"}
	if got := task.PriorityLabel(); got != "A2" {
		t.Errorf("Expected A2, got %q", got)
	}
	task = Task{}
	if got := task.PriorityLabel(); got != "" {
		t.Errorf("Expected empty label, got %q", got)
	}
}
