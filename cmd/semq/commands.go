package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"semq/internal/analysis"
	"semq/internal/git"
)

func (a *app) scanCmd() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Analyse every package under path and store the reports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			root := pathArg(args, a.cfg.Project.Root)

			units, err := a.units(root)
			if err != nil {
				return err
			}

			// 1. Narrow to changed packages
			if since != "" {
				changes, err := git.GetChangedFiles(ctx, root, since)
				if err != nil {
					return errors.WithHint(errors.Wrap(err, "failed to get git changes"),
						"--since needs a git work tree and a valid revision")
				}
				impact := analysis.AnalyzeImpact(units, changes)
				fmt.Fprintf(out, "📝 %d changed files, %d of %d packages affected.\n",
					len(changes), len(impact.Affected), len(units))
				units = impact.Affected
			}
			if len(units) == 0 {
				fmt.Fprintln(out, "✅ Nothing to analyse.")
				return nil
			}

			// 2. Initialize Store
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			alloc, err := a.restoreNames(ctx, store)
			if err != nil {
				return err
			}
			analyzer := analysis.NewAnalyzer(analysis.WithLogger(a.log), analysis.WithNames(alloc))

			// 3. Analyse and save
			var allocated []analysis.Name
			for _, u := range units {
				report, err := analyzer.Analyze(ctx, u)
				if err != nil {
					return err
				}
				if err := store.SaveReport(ctx, report); err != nil {
					return errors.Wrapf(err, "failed to save report of %s", u.Dir)
				}
				allocated = append(allocated, report.Names...)
				fmt.Fprintf(out, "%s (%s): %d smart casts, %d implicit receivers, %d representations, %d diagnostics\n",
					report.Dir, report.Package, len(report.SmartCasts), len(report.ImplicitReceivers),
					len(report.Representations), len(report.Diagnostics))
			}
			if err := store.SaveNames(ctx, allocated); err != nil {
				return errors.Wrap(err, "failed to save names")
			}

			fmt.Fprintf(out, "🎉 Scan complete! Database: %s\n", a.cfg.Storage.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only analyse packages changed since this git revision")
	return cmd
}

func (a *app) smartcastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "smartcast FILE LINE:COL",
		Short: "Show the smart cast of the expression at a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, col, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			file, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			cr, err := a.newCrawler()
			if err != nil {
				return err
			}
			pkg, err := cr.PackageOf(file)
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", args[0])
			}

			unit := analysis.Unit{Dir: pkg.Dir, Package: pkg.Name, Files: pkg.Files}
			q, err := analysis.NewAnalyzer(analysis.WithLogger(a.log)).QueryAt(cmd.Context(), unit, file, line, col)
			if err != nil {
				return err
			}
			writeQuery(cmd.OutOrStdout(), q)
			return nil
		},
	}
}

// parsePosition parses a 1-based LINE:COL pair.
func parsePosition(s string) (int, int, error) {
	lineText, colText, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, errors.WithHint(errors.Newf("invalid position %q", s), "use LINE:COL, for example 12:8")
	}
	line, err := strconv.Atoi(lineText)
	if err != nil || line < 1 {
		return 0, 0, errors.WithHint(errors.Newf("invalid line in %q", s), "lines start at 1")
	}
	col, err := strconv.Atoi(colText)
	if err != nil || col < 1 {
		return 0, 0, errors.WithHint(errors.Newf("invalid column in %q", s), "columns start at 1")
	}
	return line, col, nil
}

func writeQuery(w io.Writer, q *analysis.Query) {
	fmt.Fprintf(w, "%s:%d:%d %s\n", q.File, q.Line, q.Column, q.Expression)
	if q.SmartCast == nil && len(q.Receivers) == 0 {
		fmt.Fprintln(w, "  no smart cast")
		return
	}
	if s := q.SmartCast; s != nil {
		fmt.Fprintf(w, "  %s %s\n", s.Code(), s.Type)
	}
	for _, r := range q.Receivers {
		fmt.Fprintf(w, "  %s %s %s\n", analysis.CodeImplicitReceiver, r.Kind, r.Type)
	}
}

func (a *app) reprCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repr [path]",
		Short: "Show the representation selected for every value type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := a.units(pathArg(args, a.cfg.Project.Root))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			analyzer := analysis.NewAnalyzer(analysis.WithLogger(a.log))
			for _, u := range units {
				report, err := analyzer.Analyze(cmd.Context(), u)
				if err != nil {
					return err
				}
				for _, r := range report.Representations {
					fields := make([]string, len(r.Fields))
					for i, f := range r.Fields {
						fields[i] = f.Name + " " + f.Type
					}
					fmt.Fprintf(out, "%s.%s %s {%s}\n", report.Package, r.Type, r.Mode, strings.Join(fields, "; "))
				}
				for _, d := range report.Diagnostics {
					if d.Code == analysis.CodeEmptyValueType || d.Code == analysis.CodeRecursiveValue {
						fmt.Fprintf(out, "%s:%d %s %s\n", d.File, d.Line, d.Code, d.Message)
					}
				}
			}
			return nil
		},
	}
}

func (a *app) namesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names [path]",
		Short: "Allocate and show short names for function signatures",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			units, err := a.units(pathArg(args, a.cfg.Project.Root))
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			alloc, err := a.restoreNames(ctx, store)
			if err != nil {
				return err
			}
			analyzer := analysis.NewAnalyzer(analysis.WithLogger(a.log), analysis.WithNames(alloc))

			var allocated []analysis.Name
			for _, u := range units {
				report, err := analyzer.Analyze(ctx, u)
				if err != nil {
					return err
				}
				allocated = append(allocated, report.Names...)
			}
			if err := store.SaveNames(ctx, allocated); err != nil {
				return errors.Wrap(err, "failed to save names")
			}
			a.log.Debug("names allocated", zap.Int("new", len(allocated)), zap.Int("total", alloc.Len()))

			out := cmd.OutOrStdout()
			for _, sig := range alloc.Signatures() {
				name, _ := alloc.Lookup(sig)
				if !alloc.Enabled() {
					name = sig
				}
				fmt.Fprintf(out, "%s\t%s\n", name, sig)
			}
			return nil
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [PACKAGE]",
		Short: "Print a stored report as JSON, or list stored packages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				pkgs, err := store.Packages(ctx)
				if err != nil {
					return err
				}
				for _, p := range pkgs {
					fmt.Fprintf(out, "%s\t%s\t%d smart casts\t%d representations\t%d diagnostics\n",
						p.Dir, p.Package, p.SmartCasts, p.Representations, p.Diagnostics)
				}
				return nil
			}

			key := args[0]
			if abs, err := filepath.Abs(key); err == nil && strings.ContainsRune(key, filepath.Separator) {
				key = abs
			}
			report, err := store.LoadReport(ctx, key)
			if err != nil {
				return errors.WithHint(err, "run semq scan first, or pass a directory or package name listed by semq report")
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
