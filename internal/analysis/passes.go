package analysis

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"semq/internal/builder"
	"semq/internal/extractor"
	"semq/internal/names"
	"semq/internal/session"
	"semq/internal/smartcast"
	"semq/internal/syntax"
	"semq/internal/types"
	"semq/internal/valueclass"
)

// Unit is one package directory.
type Unit struct {
	Dir     string
	Package string
	Files   []string
}

// State is shared by the passes of one unit.
type State struct {
	Unit     Unit
	Files    []*syntax.File
	Decls    []*extractor.CodeUnit
	Registry *types.Registry
	Names    *names.Allocator
	Report   *Report
	Log      *zap.Logger
}

// NewState prepares the analysis of unit. alloc may be shared between units; nil allocates a
// private one.
func NewState(unit Unit, alloc *names.Allocator, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	if alloc == nil {
		alloc = names.New(false)
	}
	return &State{
		Unit:   unit,
		Names:  alloc,
		Report: &Report{Package: unit.Package, Dir: unit.Dir},
		Log:    log.With(zap.String("package", unit.Package)),
	}
}

func (st *State) diagnose(d Diagnostic) {
	st.Report.Diagnostics = append(st.Report.Diagnostics, d)
}

// DeclarationsPass parses the unit's files and fills the registry.
type DeclarationsPass struct{}

func (DeclarationsPass) Name() string { return "declarations" }

func (DeclarationsPass) Run(ctx context.Context, st *State) (PassStats, error) {
	ext, err := extractor.NewExtractor("go")
	if err != nil {
		return PassStats{}, err
	}

	var stats PassStats
	for _, path := range st.Unit.Files {
		stats.Attempted++
		src, err := os.ReadFile(path)
		if err != nil {
			return stats, errors.Wrapf(err, "read %s", path)
		}
		file, units, err := parseFile(ctx, ext, path, src)
		if err != nil {
			return stats, err
		}
		if file == nil {
			st.diagnose(Diagnostic{Code: CodeParseError, File: path, Message: "file has syntax errors"})
			stats.Skipped++
			continue
		}
		st.Files = append(st.Files, file)
		st.Decls = append(st.Decls, units...)
		stats.Produced += len(units)
	}

	if st.Unit.Package == "" && len(st.Files) > 0 {
		st.Unit.Package = st.Files[0].Package
		st.Report.Package = st.Unit.Package
	}
	st.Registry = types.NewRegistry(st.Unit.Package)
	extractor.Populate(st.Registry, st.Decls)
	return stats, nil
}

// parseFile parses src once for both the syntax tree and the declaration units. A nil file
// without error means the source has syntax errors.
func parseFile(ctx context.Context, ext *extractor.Extractor, path string, src []byte) (*syntax.File, []*extractor.CodeUnit, error) {
	tree, err := syntax.ParseTree(ctx, src)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parse %s", path)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, nil, nil
	}
	return syntax.FromTree(path, src, root), ext.ExtractTree(path, src, root), nil
}

// RepresentationsPass selects the representation of every value type.
type RepresentationsPass struct{}

func (RepresentationsPass) Name() string { return "representations" }

func (RepresentationsPass) Run(_ context.Context, st *State) (PassStats, error) {
	var stats PassStats
	for _, decl := range st.Registry.ValueDecls() {
		stats.Attempted++
		rep, err := st.Registry.Representation(decl.Name)
		switch {
		case errors.Is(err, types.ErrEmptyValueType):
			st.diagnose(Diagnostic{
				Code:    CodeEmptyValueType,
				File:    st.declFile(decl.Name),
				Line:    decl.Line,
				Message: "value type " + decl.Name + " has no fields",
			})
			stats.Skipped++
			continue
		case errors.Is(err, types.ErrRecursiveValueType):
			st.diagnose(Diagnostic{
				Code:    CodeRecursiveValue,
				File:    st.declFile(decl.Name),
				Line:    decl.Line,
				Message: "value type " + decl.Name + " contains itself",
			})
			stats.Skipped++
			continue
		case err != nil:
			return stats, errors.Wrapf(err, "representation of %s", decl.Name)
		}
		st.Report.Representations = append(st.Report.Representations, layout(decl.Name, rep))
		stats.Produced++
	}
	return stats, nil
}

func layout(name string, rep valueclass.Representation[types.Type]) Representation {
	out := Representation{Type: name, Mode: rep.Mode().String()}
	for _, f := range rep.Fields() {
		out.Fields = append(out.Fields, FieldLayout{Name: f.Name, Type: typeString(f.Type)})
	}
	return out
}

func typeString(t types.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}

func (st *State) declFile(name string) string {
	for _, u := range st.Decls {
		if u.Name == name && (u.UnitType == "struct" || u.UnitType == "type" || u.UnitType == "interface") {
			return u.Filepath
		}
	}
	return ""
}

// NamesPass allocates a short name for every function and method signature.
type NamesPass struct{}

func (NamesPass) Name() string { return "names" }

func (NamesPass) Run(_ context.Context, st *State) (PassStats, error) {
	var stats PassStats
	for _, u := range st.Decls {
		sig := extractor.Signature(u)
		if sig == "" {
			continue
		}
		stats.Attempted++
		if _, seen := st.Names.Lookup(sig); seen {
			stats.Skipped++
			continue
		}
		st.Report.Names = append(st.Report.Names, Name{Signature: sig, Name: st.Names.NameBySignature(sig)})
		stats.Produced++
	}
	return stats, nil
}

// SmartcastsPass queries every name reference of the unit. Files are analysed concurrently, each
// in its own session.
type SmartcastsPass struct{}

func (SmartcastsPass) Name() string { return "smartcasts" }

type fileCasts struct {
	refs      int
	empty     int
	casts     []SmartCast
	receivers []ImplicitReceiverCast
}

func (SmartcastsPass) Run(ctx context.Context, st *State) (PassStats, error) {
	results := make([]fileCasts, len(st.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range st.Files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := fileSmartcasts(st.Registry, file, st.Log)
			if err != nil {
				return errors.Wrapf(err, "smart casts of %s", file.Path)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PassStats{}, err
	}

	var stats PassStats
	for _, res := range results {
		stats.Attempted += res.refs
		stats.Produced += len(res.casts) + len(res.receivers)
		stats.Skipped += res.empty
		st.Report.SmartCasts = append(st.Report.SmartCasts, res.casts...)
		st.Report.ImplicitReceivers = append(st.Report.ImplicitReceivers, res.receivers...)
	}
	st.Report.Sort()
	return stats, nil
}

func fileSmartcasts(reg *types.Registry, file *syntax.File, log *zap.Logger) (fileCasts, error) {
	s := session.New(builder.New(reg, file, log), session.WithLogger(log))
	defer s.Close()
	p := smartcast.NewProvider(s)

	var out fileCasts
	for _, ref := range file.NameReferences() {
		out.refs++
		info, err := p.SmartCastInfo(ref)
		if err != nil {
			return out, err
		}
		if info != nil {
			out.casts = append(out.casts, SmartCast{
				Location:   locationOf(file.Path, ref),
				Expression: ref.Text,
				Type:       typeString(info.Type),
				Stable:     info.Stable,
			})
		}
		receivers, err := p.ImplicitReceiverSmartCasts(ref)
		if err != nil {
			return out, err
		}
		for _, r := range receivers {
			out.receivers = append(out.receivers, newImplicitReceiverCast(file.Path, ref, r))
		}
		if info == nil && len(receivers) == 0 {
			out.empty++
		}
	}
	return out, nil
}
