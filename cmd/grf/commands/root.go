package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-region-facts/internal/config"
	"github.com/l3aro/go-region-facts/internal/log"
	"github.com/l3aro/go-region-facts/internal/metrics"
)

// state is shared by the commands of one invocation.
type state struct {
	configPath string
	logLevel   string
	jsonLogs   bool

	cfg      *config.Config
	logger   *log.DefaultLogger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// NewRootCmd builds the grf command tree.
func NewRootCmd() *cobra.Command {
	st := &state{}

	root := &cobra.Command{
		Use:   "grf",
		Short: "go-region-facts - Region facts for borrow checking",
		Long: `go-region-facts enriches procedure bodies with region inference facts.

Commands:
  enrich      Enrich the procedures of a program and export their facts
  catalog     Show the universal regions of a Rust function signature
  facts       Inspect a persisted fact store
  schema      List the fact relations
  init        Write a default configuration file

Use "grf [command] --help" for more information about a command.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&st.configPath, "config", "", "Config file path")
	root.PersistentFlags().StringVar(&st.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&st.jsonLogs, "json-logs", false, "Log as JSON")

	root.AddCommand(newEnrichCmd(st))
	root.AddCommand(newCatalogCmd(st))
	root.AddCommand(newFactsCmd(st))
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newInitCmd())

	return root
}

// Execute runs the command tree with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (s *state) setup(cmd *cobra.Command) error {
	var err error
	if s.configPath != "" {
		s.cfg, err = config.LoadFromFile(s.configPath)
	} else {
		s.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if s.logLevel != "" {
		s.cfg.LogLevel = s.logLevel
	}
	level, err := log.ParseLevel(s.cfg.LogLevel)
	if err != nil {
		return err
	}

	s.logger = log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: s.cfg.JSONLogs || s.jsonLogs,
		Output:     cmd.ErrOrStderr(),
	})
	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.New(s.registry)
	return nil
}

// outputFormat resolves the --format flag, falling back to def when unset.
func outputFormat(flag, def string) (string, error) {
	if flag == "" {
		flag = def
	}
	switch flag {
	case "text", string(config.FormatJSON), string(config.FormatYAML), string(config.FormatMsgpack):
		return flag, nil
	default:
		return "", fmt.Errorf("unknown format: %s (use text, json, yaml or msgpack)", flag)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case string(config.FormatYAML):
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}

// printMetrics writes the counters and histogram counts of reg.
func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	fmt.Fprintln(w, "\nMetrics:")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "  %s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "  %s%s count=%d sum=%g\n", mf.GetName(), labels, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}
