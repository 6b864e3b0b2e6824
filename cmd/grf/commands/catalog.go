package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/regions"
	"github.com/l3aro/go-region-facts/pkg/rustsyntax"
)

// CatalogReport lists the universal regions of a signature.
type CatalogReport struct {
	Function      string                    `json:"function" yaml:"function"`
	File          string                    `json:"file" yaml:"file"`
	Line          int                       `json:"line" yaml:"line"`
	Regions       []regions.UniversalRegion `json:"regions" yaml:"regions"`
	Inputs        []string                  `json:"inputs" yaml:"inputs"`
	Output        string                    `json:"output" yaml:"output"`
	KnownOutlives []string                  `json:"known_outlives,omitempty" yaml:"known_outlives,omitempty"`
}

func newCatalogCmd(st *state) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "catalog <file.rs> <function>",
		Short: "Show the universal regions of a Rust function signature",
		Long: `Parses a Rust source file and builds the universal region catalog of
one function: 'static when mentioned, the declared lifetimes, one region per
elided input lifetime and the region of the body. The known outlives relation
derived from declared bounds and well-formed references is listed too.

Methods are named Type::method and trait items Trait::method.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := outputFormat(format, "text")
			if err != nil {
				return err
			}
			report, err := buildCatalog(args[0], args[1])
			if err != nil {
				return err
			}
			st.logger.Debug("catalog built", "function", report.Function, "regions", len(report.Regions))
			if out == "text" {
				printCatalog(cmd.OutOrStdout(), report)
				return nil
			}
			if out == "msgpack" {
				return fmt.Errorf("catalog does not support msgpack output")
			}
			return writeStructured(cmd.OutOrStdout(), out, report)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json or yaml")
	return cmd
}

func buildCatalog(path, name string) (*CatalogReport, error) {
	file, err := rustsyntax.ParseFilePath(path)
	if err != nil {
		return nil, err
	}
	decl, err := file.Function(name)
	if err != nil {
		return nil, err
	}

	b := mir.NewContextBuilder()
	for _, def := range file.Structs {
		b.AddAdt(def)
	}
	proc := &mir.Procedure{ID: decl.Name, Signature: decl.Signature}
	tcx, err := b.AddProcedure(proc).Build()
	if err != nil {
		return nil, err
	}

	ur, err := regions.NewUniversalRegions(regions.NewInferCtxt(), tcx, proc)
	if err != nil {
		return nil, err
	}
	rel, err := regions.CreateRelations(ur, decl.Signature, &regions.ConstraintSet{})
	if err != nil {
		return nil, err
	}

	report := &CatalogReport{
		Function: decl.Name,
		File:     path,
		Line:     decl.LineNumber,
		Regions:  ur.Regions(),
		Output:   ur.Output().String(),
	}
	for _, in := range ur.Inputs() {
		report.Inputs = append(report.Inputs, in.String())
	}
	for _, o := range rel.KnownOutlives() {
		report.KnownOutlives = append(report.KnownOutlives, o.String())
	}
	return report, nil
}

func printCatalog(w io.Writer, r *CatalogReport) {
	fmt.Fprintf(w, "=== Universal regions: %s (%s:%d) ===\n\n", r.Function, r.File, r.Line)
	for _, u := range r.Regions {
		fmt.Fprintf(w, "  %-6s %-10s %s\n", u.Vid, u.Kind, u)
	}
	fmt.Fprintln(w, "\nSignature:")
	for i, in := range r.Inputs {
		fmt.Fprintf(w, "  input %d: %s\n", i, in)
	}
	fmt.Fprintf(w, "  output:  %s\n", r.Output)
	if len(r.KnownOutlives) > 0 {
		fmt.Fprintln(w, "\nKnown outlives:")
		for _, o := range r.KnownOutlives {
			fmt.Fprintf(w, "  %s\n", o)
		}
	}
}
