package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-region-facts/internal/log"
	"github.com/l3aro/go-region-facts/internal/scanner"
	"github.com/l3aro/go-region-facts/pkg/cache"
	"github.com/l3aro/go-region-facts/pkg/enrich"
	"github.com/l3aro/go-region-facts/pkg/facts"
	"github.com/l3aro/go-region-facts/pkg/program"
)

// ProcedureReport is the exported view of one enriched procedure.
type ProcedureReport struct {
	Program           string       `json:"program,omitempty" yaml:"program,omitempty"`
	DefID             string       `json:"def_id" yaml:"def_id"`
	SessionID         string       `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Kind              string       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Tainted           bool         `json:"tainted,omitempty" yaml:"tainted,omitempty"`
	RegionVars        int          `json:"region_vars" yaml:"region_vars"`
	UniversalRegions  []string     `json:"universal_regions,omitempty" yaml:"universal_regions,omitempty"`
	UniversalRelation []string     `json:"universal_relation,omitempty" yaml:"universal_relation,omitempty"`
	Loans             int          `json:"loans" yaml:"loans"`
	MoveErrors        []string     `json:"move_errors,omitempty" yaml:"move_errors,omitempty"`
	Facts             *facts.Table `json:"facts,omitempty" yaml:"facts,omitempty"`
	Error             string       `json:"error,omitempty" yaml:"error,omitempty"`
}

type enrichFlags struct {
	format      string
	workers     int
	output      string
	showMetrics bool
}

func newEnrichCmd(st *state) *cobra.Command {
	var f enrichFlags

	cmd := &cobra.Command{
		Use:   "enrich <program.yaml|dir> [procedure...]",
		Short: "Enrich the procedures of a program and export their facts",
		Long: `Loads a program file and enriches each procedure body with region
variables, outlives constraints, loans, move data and relational facts.
Without procedure arguments every procedure of the program is enriched.
Given a directory, every program file below it is enriched; a .grfignore
file excludes paths the way .gitignore does.

A procedure that fails is reported and skipped; the command only fails
when no procedure could be enriched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, st, f, args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format: text, json, yaml or msgpack (default from config)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Procedures enriched in parallel (default from config)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&f.showMetrics, "metrics", false, "Print enrichment metrics after a text report")
	return cmd
}

func runEnrich(cmd *cobra.Command, st *state, f enrichFlags, path string, ids []string) error {
	format, err := outputFormat(f.format, string(st.cfg.Format))
	if err != nil {
		return err
	}
	workers := f.workers
	if workers <= 0 {
		workers = st.cfg.Workers
	}

	paths, err := programPaths(path)
	if err != nil {
		return err
	}
	if len(ids) > 0 && len(paths) != 1 {
		return errors.New("procedure arguments need a single program file")
	}

	var (
		reports []ProcedureReport
		ok      []*enrich.EnrichedBody
		failed  int
	)
	for _, p := range paths {
		r, bodies, n, err := st.enrichProgram(cmd, p, ids, workers)
		if err != nil {
			if len(paths) == 1 {
				return err
			}
			st.logger.Warn("skipping program", "path", p, "error", err)
			failed++
			continue
		}
		if len(paths) > 1 {
			for i := range r {
				r[i].Program = p
			}
		}
		reports = append(reports, r...)
		ok = append(ok, bodies...)
		failed += n
	}

	w := cmd.OutOrStdout()
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer file.Close()
		w = file
	}

	switch format {
	case "text":
		printEnrichReport(w, path, reports)
		if f.showMetrics {
			if err := printMetrics(w, st.registry); err != nil {
				return err
			}
		}
	case "msgpack":
		if err := cache.SaveFacts(w, ok); err != nil {
			return err
		}
	default:
		if err := writeStructured(w, format, reports); err != nil {
			return err
		}
	}

	if len(ok) == 0 && failed > 0 {
		return errors.New("no procedure could be enriched")
	}
	return nil
}

// programPaths returns path itself, or the program files below it when it
// is a directory.
func programPaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := scanner.Programs(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no program files under %s", path)
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Join(path, filepath.FromSlash(f.Path))
	}
	return out, nil
}

// enrichProgram enriches ids of the program at path, or all of its
// procedures when ids is empty, and persists the facts when a cache
// directory is configured. It returns the reports, the enriched bodies and
// the number of failed procedures.
func (s *state) enrichProgram(cmd *cobra.Command, path string, ids []string, workers int) ([]ProcedureReport, []*enrich.EnrichedBody, int, error) {
	prog, err := program.LoadFile(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("loading program: %w", err)
	}
	if len(ids) == 0 {
		ids = prog.IDs
	}

	bodies := cache.NewBodyCache(prog.Context, s.cfg.CacheSize, s.metrics,
		enrich.WithLogger(s.logger),
		enrich.WithMetrics(s.metrics),
		enrich.WithExpandAllLocations(s.cfg.ExpandAllLocations),
	)

	spinner := log.NewProgressSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Enriching %d procedures of %s...", len(ids), path))
	spinner.Start()
	results, err := bodies.GetAll(cmd.Context(), ids, workers)
	spinner.Stop()
	if err != nil {
		return nil, nil, 0, err
	}

	var (
		reports []ProcedureReport
		ok      []*enrich.EnrichedBody
		failed  int
	)
	for _, r := range results {
		if r.Err != nil {
			failed++
			s.logger.Warn("enrichment failed", "procedure", r.DefID, "error", r.Err)
			reports = append(reports, ProcedureReport{DefID: r.DefID, Error: r.Err.Error()})
			continue
		}
		ok = append(ok, r.Body)
		reports = append(reports, reportOf(r.Body))
	}
	s.logger.Info("enrichment finished", "program", path, "ok", len(ok), "failed", failed)

	if s.cfg.CacheDir != "" && len(ok) > 0 {
		storePath := storePathFor(s.cfg.CacheDir, path)
		if err := bodies.SaveFile(storePath); err != nil {
			return nil, nil, 0, fmt.Errorf("persisting facts: %w", err)
		}
		s.logger.Debug("facts persisted", "path", storePath)
	}
	return reports, ok, failed, nil
}

// storePathFor names the fact store of a program inside dir.
func storePathFor(dir, programPath string) string {
	base := filepath.Base(programPath)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".msgpack")
}

func reportOf(eb *enrich.EnrichedBody) ProcedureReport {
	r := ProcedureReport{
		DefID:      eb.DefID(),
		SessionID:  eb.SessionID(),
		Kind:       eb.Body().Kind.String(),
		Tainted:    eb.Tainted(),
		RegionVars: eb.NumRegionVars(),
		Loans:      len(eb.Loans()),
		Facts:      eb.Facts(),
	}
	for _, u := range eb.UniversalRegions().Regions() {
		r.UniversalRegions = append(r.UniversalRegions, fmt.Sprintf("%s %s", u.Vid, u))
	}
	for _, o := range eb.UniversalRelation() {
		r.UniversalRelation = append(r.UniversalRelation, o.String())
	}
	for _, e := range eb.MoveErrors() {
		r.MoveErrors = append(r.MoveErrors, e.Error())
	}
	return r
}

func printEnrichReport(w io.Writer, path string, reports []ProcedureReport) {
	fmt.Fprintf(w, "=== Region facts: %s ===\n", path)

	for _, r := range reports {
		if r.Program != "" {
			fmt.Fprintf(w, "\n%s: %s", r.Program, r.DefID)
		} else {
			fmt.Fprintf(w, "\n%s", r.DefID)
		}
		if r.Error != "" {
			fmt.Fprintf(w, ": FAILED\n  %s\n", r.Error)
			continue
		}
		fmt.Fprintf(w, " (%s)", r.Kind)
		if r.Tainted {
			fmt.Fprint(w, " [tainted]")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Region variables: %d\n", r.RegionVars)
		fmt.Fprintf(w, "  Universal regions: %s\n", strings.Join(r.UniversalRegions, ", "))
		if len(r.UniversalRelation) > 0 {
			fmt.Fprintf(w, "  Known outlives: %s\n", strings.Join(r.UniversalRelation, ", "))
		}
		fmt.Fprintf(w, "  Loans: %d\n", r.Loans)
		for _, e := range r.MoveErrors {
			fmt.Fprintf(w, "  Move error: %s\n", e)
		}
		printCounts(w, r.Facts)
	}
}

// printCounts writes the non-empty relations of t in canonical order.
func printCounts(w io.Writer, t *facts.Table) {
	fmt.Fprintf(w, "  Facts: %d\n", t.Len())
	for _, rel := range facts.Order {
		if n := t.Count(rel); n > 0 {
			fmt.Fprintf(w, "    %-26s %d\n", rel, n)
		}
	}
}
