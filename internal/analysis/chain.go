package analysis

import (
	"context"

	"go.uber.org/zap"
)

type PassStats struct {
	Attempted int
	Produced  int
	Skipped   int
}

// Pass is one stage of the analysis of a unit.
type Pass interface {
	Name() string
	Run(ctx context.Context, st *State) (PassStats, error)
}

type StageResult struct {
	Pass              string
	Stats             PassStats
	DiagnosticsBefore int
	DiagnosticsAfter  int
	Err               error
}

type Chain struct {
	passes []Pass
}

func NewChain(passes ...Pass) *Chain {
	return &Chain{passes: passes}
}

// NewDefaultChain runs declarations first; every later pass reads the registry it fills.
func NewDefaultChain() *Chain {
	return NewChain(
		DeclarationsPass{},
		RepresentationsPass{},
		NamesPass{},
		SmartcastsPass{},
	)
}

// Run executes the passes in order and stops at the first failing one.
func (c *Chain) Run(ctx context.Context, st *State) []StageResult {
	if st == nil {
		return nil
	}

	var out []StageResult
	for _, p := range c.passes {
		if err := ctx.Err(); err != nil {
			out = append(out, StageResult{Pass: p.Name(), Err: err})
			break
		}
		before := len(st.Report.Diagnostics)
		stats, err := p.Run(ctx, st)
		res := StageResult{
			Pass:              p.Name(),
			Stats:             stats,
			DiagnosticsBefore: before,
			DiagnosticsAfter:  len(st.Report.Diagnostics),
			Err:               err,
		}
		out = append(out, res)
		st.Log.Debug("pass finished",
			zap.String("pass", res.Pass),
			zap.Int("attempted", stats.Attempted),
			zap.Int("produced", stats.Produced),
			zap.Int("skipped", stats.Skipped),
			zap.Error(err),
		)
		if err != nil {
			break
		}
	}
	return out
}
