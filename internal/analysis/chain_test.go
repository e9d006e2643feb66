package analysis

import (
	"context"
	"errors"
	"testing"
)

type fakePass struct {
	name string
	fn   func(st *State) (PassStats, error)
}

func (f fakePass) Name() string { return f.name }
func (f fakePass) Run(_ context.Context, st *State) (PassStats, error) {
	return f.fn(st)
}

func TestChain_Run(t *testing.T) {
	st := NewState(Unit{Dir: "p", Package: "p"}, nil, nil)

	p1 := fakePass{
		name: "p1",
		fn: func(st *State) (PassStats, error) {
			st.diagnose(Diagnostic{Code: CodeEmptyValueType, Message: "x"})
			return PassStats{Attempted: 2, Produced: 1, Skipped: 1}, nil
		},
	}
	p2 := fakePass{
		name: "p2",
		fn: func(st *State) (PassStats, error) {
			return PassStats{Attempted: 1}, errors.New("boom")
		},
	}
	p3 := fakePass{
		name: "p3",
		fn: func(st *State) (PassStats, error) {
			t.Fatal("a pass after a failure must not run")
			return PassStats{}, nil
		},
	}

	results := NewChain(p1, p2, p3).Run(context.Background(), st)

	if len(results) != 2 {
		t.Fatalf("expected 2 stage results, got %d", len(results))
	}
	if results[0].Pass != "p1" || results[1].Pass != "p2" {
		t.Fatalf("unexpected pass order: %+v", results)
	}
	if results[0].DiagnosticsBefore != 0 || results[0].DiagnosticsAfter != 1 {
		t.Fatalf("unexpected diagnostics transition for p1: %+v", results[0])
	}
	if results[0].Stats.Produced != 1 {
		t.Fatalf("unexpected stats for p1: %+v", results[0].Stats)
	}
	if results[1].Err == nil {
		t.Fatalf("expected p2 to carry its error")
	}
}

func TestChain_NilState(t *testing.T) {
	if got := NewDefaultChain().Run(context.Background(), nil); got != nil {
		t.Fatalf("expected no results, got %+v", got)
	}
}
