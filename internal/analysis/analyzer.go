package analysis

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"semq/internal/builder"
	"semq/internal/names"
	"semq/internal/session"
	"semq/internal/smartcast"
)

// ErrNoExpression is returned by QueryAt when no expression covers the position.
var ErrNoExpression = errors.New("no expression at position")

// Analyzer runs the analysis chain over package units. It shares one name allocator across
// every unit it analyses.
type Analyzer struct {
	chain *Chain
	names *names.Allocator
	log   *zap.Logger
}

type Option func(*Analyzer)

func WithLogger(log *zap.Logger) Option {
	return func(a *Analyzer) {
		if log != nil {
			a.log = log
		}
	}
}

func WithChain(c *Chain) Option {
	return func(a *Analyzer) { a.chain = c }
}

func WithNames(alloc *names.Allocator) Option {
	return func(a *Analyzer) { a.names = alloc }
}

func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		chain: NewDefaultChain(),
		names: names.New(false),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Names returns the allocator shared by the analysed units.
func (a *Analyzer) Names() *names.Allocator { return a.names }

// Analyze runs every pass over unit. The report is returned with the error of a failed pass so
// callers can inspect what completed.
func (a *Analyzer) Analyze(ctx context.Context, unit Unit) (*Report, error) {
	st := NewState(unit, a.names, a.log)
	stages := a.chain.Run(ctx, st)
	st.Report.Stages = stages
	for _, s := range stages {
		if s.Err != nil {
			return st.Report, errors.Wrapf(s.Err, "%s pass of %s", s.Pass, unit.Dir)
		}
	}
	a.log.Info("analysed package",
		zap.String("package", st.Report.Package),
		zap.Int("files", len(st.Files)),
		zap.Int("smart_casts", len(st.Report.SmartCasts)),
		zap.Int("representations", len(st.Report.Representations)),
		zap.Int("diagnostics", len(st.Report.Diagnostics)),
	)
	return st.Report, nil
}

// Query is the answer to a position query.
type Query struct {
	Location
	Expression string
	SmartCast  *SmartCast
	Receivers  []ImplicitReceiverCast
}

// QueryAt answers the smart-cast queries for the innermost expression at line:col of path.
// unit must contain path; only its declarations are loaded.
func (a *Analyzer) QueryAt(ctx context.Context, unit Unit, path string, line, col int) (*Query, error) {
	st := NewState(unit, a.names, a.log)
	if _, err := (DeclarationsPass{}).Run(ctx, st); err != nil {
		return nil, err
	}

	want := filepath.Clean(path)
	for _, file := range st.Files {
		if filepath.Clean(file.Path) != want {
			continue
		}
		expr := file.ExpressionAt(line, col)
		if expr == nil {
			return nil, errors.Wrapf(ErrNoExpression, "%s:%d:%d", path, line, col)
		}

		s := session.New(builder.New(st.Registry, file, a.log), session.WithLogger(a.log))
		defer s.Close()
		p := smartcast.NewProvider(s)

		q := &Query{Location: locationOf(file.Path, expr), Expression: expr.Text}
		info, err := p.SmartCastInfo(expr)
		if err != nil {
			return nil, err
		}
		if info != nil {
			q.SmartCast = &SmartCast{Location: q.Location, Expression: expr.Text, Type: typeString(info.Type), Stable: info.Stable}
		}
		receivers, err := p.ImplicitReceiverSmartCasts(expr)
		if err != nil {
			return nil, err
		}
		for _, r := range receivers {
			q.Receivers = append(q.Receivers, newImplicitReceiverCast(file.Path, expr, r))
		}
		return q, nil
	}
	return nil, errors.WithHint(errors.Newf("%s is not part of package %s", path, unit.Dir),
		"the file may have syntax errors or belong to another package")
}
