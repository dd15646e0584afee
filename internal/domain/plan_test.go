package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validPlan() *Plan {
	return &Plan{
		ID:      uuid.New(),
		Name:    "train",
		Command: "python train.py",
		Parameters: []CommandParameter{
			{Name: "data", Kind: KindInput, Default: "data.csv", Position: 1},
			{Name: "model", Kind: KindOutput, Default: "model.bin", Position: 2},
			{Name: "epochs", Kind: KindArgument, Default: "10", Position: 3, Prefix: "--epochs "},
		},
		CreatedAt: time.Now(),
	}
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Plan)
		wantErr error
	}{
		{"valid", func(*Plan) {}, nil},
		{"empty name", func(p *Plan) { p.Name = "" }, ErrEmptyPlanName},
		{"empty command", func(p *Plan) { p.Command = "" }, ErrEmptyCommand},
		{"empty parameter name", func(p *Plan) { p.Parameters[0].Name = "" }, ErrEmptyParameterName},
		{"duplicate parameter", func(p *Plan) { p.Parameters[1].Name = "data" }, ErrDuplicateParameter},
		{"unknown kind", func(p *Plan) { p.Parameters[0].Kind = "banana" }, ErrUnknownParameterKind},
		{"stdin on output", func(p *Plan) { p.Parameters[1].Stream = StreamStdin }, ErrStreamKindMismatch},
		{"stdout on input", func(p *Plan) { p.Parameters[0].Stream = StreamStdout }, ErrStreamKindMismatch},
		{"create folder on input", func(p *Plan) { p.Parameters[0].CreateFolder = true }, ErrCreateFolderOnNonOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := validPlan()
			tt.mutate(plan)
			err := plan.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlanDerive(t *testing.T) {
	original := validPlan()
	now := time.Now().Add(time.Hour)

	next := original.Derive(now)

	if next.ID == original.ID {
		t.Error("derived version must get a new id")
	}
	if next.DerivedFrom == nil || *next.DerivedFrom != original.ID {
		t.Error("derived version must reference the original")
	}
	if !next.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", next.CreatedAt, now)
	}

	// копия независима: правка default'а не видна оригиналу
	next.Parameters[0].Default = "data-v2.csv"
	if original.Parameters[0].Default != "data.csv" {
		t.Error("derive must copy parameters, not share the slice")
	}
}

func TestPlanInvalidate(t *testing.T) {
	plan := validPlan()
	first := time.Now()

	plan.Invalidate(first)
	if plan.IsActive() {
		t.Fatal("invalidated plan reported active")
	}

	// повторная инвалидация не сдвигает метку
	plan.Invalidate(first.Add(time.Hour))
	if !plan.InvalidatedAt.Equal(first) {
		t.Error("second invalidate must not move the timestamp")
	}
}

func TestPlanIsSuccessCode(t *testing.T) {
	plan := validPlan()

	if !plan.IsSuccessCode(0) || plan.IsSuccessCode(1) {
		t.Error("empty success set must mean {0}")
	}

	plan.SuccessCodes = []int{0, 3}
	if !plan.IsSuccessCode(3) {
		t.Error("declared code 3 must be success")
	}
	if plan.IsSuccessCode(1) {
		t.Error("undeclared code 1 must not be success")
	}
}

func TestPlanInputsOutputsOrderedByPosition(t *testing.T) {
	plan := validPlan()
	plan.Parameters = append(plan.Parameters,
		CommandParameter{Name: "extra", Kind: KindInput, Default: "extra.csv", Position: 0})

	inputs := plan.Inputs()
	if len(inputs) != 2 || inputs[0].Name != "extra" || inputs[1].Name != "data" {
		t.Errorf("inputs = %+v, want position order extra,data", inputs)
	}
	outputs := plan.Outputs()
	if len(outputs) != 1 || outputs[0].Name != "model" {
		t.Errorf("outputs = %+v", outputs)
	}
}

func validComposite() *CompositePlan {
	return &CompositePlan{
		ID:   uuid.New(),
		Name: "pipeline",
		Children: []ChildRef{
			{Name: "clean", Kind: ChildPlan, PlanID: uuid.New()},
			{Name: "train", Kind: ChildPlan, PlanID: uuid.New()},
		},
		Mappings: []ParameterMapping{
			{Name: "epochs", Targets: []string{"train.epochs"}},
		},
		Links: []ParameterLink{
			{Source: "clean.out", Sinks: []string{"train.data"}},
		},
		CreatedAt: time.Now(),
	}
}

func TestCompositeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CompositePlan)
		wantErr error
	}{
		{"valid", func(*CompositePlan) {}, nil},
		{"empty name", func(c *CompositePlan) { c.Name = "" }, ErrEmptyPlanName},
		{"no children", func(c *CompositePlan) { c.Children = nil }, ErrEmptyChildren},
		{"duplicate child", func(c *CompositePlan) { c.Children[1].Name = "clean" }, ErrDuplicateChildName},
		{"mapping without targets", func(c *CompositePlan) { c.Mappings[0].Targets = nil }, ErrEmptyMappingTargets},
		{"mapping to unknown child", func(c *CompositePlan) { c.Mappings[0].Targets = []string{"plot.epochs"} }, ErrBadParameterPath},
		{"link source without dot", func(c *CompositePlan) { c.Links[0].Source = "clean" }, ErrBadParameterPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			composite := validComposite()
			tt.mutate(composite)
			err := composite.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompositeDerive(t *testing.T) {
	original := validComposite()
	now := time.Now().Add(time.Hour)

	next := original.Derive(now)

	if next.ID == original.ID {
		t.Error("derived version must get a new id")
	}
	if next.DerivedFrom == nil || *next.DerivedFrom != original.ID {
		t.Error("derived version must reference the original")
	}

	next.Children[0].Name = "renamed"
	if original.Children[0].Name != "clean" {
		t.Error("derive must copy children, not share the slice")
	}
}
