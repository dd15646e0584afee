package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vselutin/lineage/internal/graph"
	"github.com/vselutin/lineage/internal/provider"
	"github.com/vselutin/lineage/internal/resolve"
	"github.com/vselutin/lineage/internal/storage"
	"github.com/vselutin/lineage/internal/update"
)

func TestParseAnnotations(t *testing.T) {
	annotations := parseAnnotations([]string{"data.csv", "model=out/model.bin", "lr=0.01"})

	if len(annotations) != 3 {
		t.Fatalf("got %d annotations, want 3", len(annotations))
	}
	if annotations[0].Name != "" || annotations[0].Value != "data.csv" {
		t.Errorf("bare value parsed as %+v", annotations[0])
	}
	if annotations[1].Name != "model" || annotations[1].Value != "out/model.bin" {
		t.Errorf("named value parsed as %+v", annotations[1])
	}
	if annotations[2].Name != "lr" || annotations[2].Value != "0.01" {
		t.Errorf("named value parsed as %+v", annotations[2])
	}
}

func TestParseOverrides(t *testing.T) {
	overrides, err := parseOverrides([]string{"epochs=20", "child.input=data/v2.csv", "empty="})
	if err != nil {
		t.Fatalf("parseOverrides: %v", err)
	}
	if overrides["epochs"] != "20" || overrides["child.input"] != "data/v2.csv" {
		t.Errorf("overrides = %v", overrides)
	}
	if v, ok := overrides["empty"]; !ok || v != "" {
		t.Errorf("empty value not preserved: %v", overrides)
	}
}

func TestParseOverrides_Malformed(t *testing.T) {
	if _, err := parseOverrides([]string{"no-equals"}); err == nil {
		t.Error("expected error for value without =")
	}
	if _, err := parseOverrides([]string{"=value"}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := parseOverrides([]string{"a=1", "a=2"}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"execution failed", fmt.Errorf("update: %w", provider.ErrExecutionFailed), ExitFailure},
		{"lock timeout", fmt.Errorf("acquire: %w", storage.ErrLockTimeout), ExitLockTimeout},
		{"nothing to do", update.ErrNothingToDo, ExitNothingToDo},
		{"cycle", &graph.CycleError{Path: []string{"a", "b", "a"}}, ExitResolution},
		{"cyclic reference", graph.ErrCyclicDependency, ExitResolution},
		{"unresolvable override", &resolve.ResolutionError{Expression: "x=1", Reason: "no such parameter", Err: resolve.ErrUnresolvable}, ExitResolution},
		{"deleted outputs", update.ErrDeletedOutputs, ExitResolution},
		{"unknown path", fmt.Errorf("%w: no recorded execution", update.ErrActivityNotFound), ExitResolution},
		{"plain error", errors.New("connection refused"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestShortHash(t *testing.T) {
	if got := shortHash("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("shortHash long = %q", got)
	}
	if got := shortHash(""); got != "-" {
		t.Errorf("shortHash empty = %q", got)
	}
	if got := shortHash("abc"); got != "abc" {
		t.Errorf("shortHash short = %q", got)
	}
}
