package stage_test

import (
	"errors"
	"testing"

	"showrunner/internal/services"
	"showrunner/internal/stage"
)

func TestDefinitionsOrdered(t *testing.T) {
	defs := stage.Definitions()
	if len(defs) != stage.Count() {
		t.Fatalf("Definitions returned %d entries, Count says %d", len(defs), stage.Count())
	}
	for i, def := range defs {
		if def.Index != i+1 {
			t.Fatalf("definition %d has index %d", i, def.Index)
		}
		if def.Name == "" || def.OutputPath == "" {
			t.Fatalf("definition %d incomplete: %+v", i, def)
		}
	}
}

func TestByIndexRange(t *testing.T) {
	if _, ok := stage.ByIndex(0); ok {
		t.Fatal("index 0 should not resolve")
	}
	if _, ok := stage.ByIndex(stage.Count() + 1); ok {
		t.Fatal("index past the registry should not resolve")
	}
	def, ok := stage.ByIndex(stage.Transcription)
	if !ok || def.Name != "transcription" {
		t.Fatalf("unexpected definition for transcription index: %+v", def)
	}
}

func TestValidateSelection(t *testing.T) {
	cases := []struct {
		name     string
		selected []int
		wantErr  bool
		wantGaps bool
	}{
		{name: "full pipeline", selected: stage.AllIndices()},
		{name: "prefix", selected: []int{1, 2, 3}},
		{name: "gap", selected: []int{1, 2, 4}, wantGaps: true},
		{name: "single late stage", selected: []int{7}},
		{name: "empty", selected: nil, wantErr: true},
		{name: "duplicate", selected: []int{1, 1, 2}, wantErr: true},
		{name: "decreasing", selected: []int{3, 2}, wantErr: true},
		{name: "out of range", selected: []int{1, 99}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hasGaps, err := stage.ValidateSelection(tc.selected)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hasGaps != tc.wantGaps {
				t.Fatalf("hasGaps = %v, want %v", hasGaps, tc.wantGaps)
			}
		})
	}
}

func TestNameFor(t *testing.T) {
	if got := stage.NameFor(stage.Compilation); got != "compilation" {
		t.Fatalf("unexpected name: %q", got)
	}
	if got := stage.NameFor(42); got != "stage_42" {
		t.Fatalf("unexpected placeholder: %q", got)
	}
}
