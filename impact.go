package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/phil-mansfield/impact/lib"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/metrics"
)

// flagKeys maps command line flags to the config variables they set.
var flagKeys = map[string]string{
	"run-dir":          "run_dir",
	"variant":          "variant",
	"bunch-count":      "bunch_count",
	"bunch-names":      "bunch_names",
	"bpm-list":         "bpm_list",
	"cell-count":       "cell_count",
	"step-log":         "files.step_log",
	"phase-space":      "files.phase_space",
	"end-slice":        "files.end_slice",
	"plots":            "plot.kinds",
	"output-dir":       "plot.output_dir",
	"format":           "plot.format",
	"width":            "plot.width",
	"height":           "plot.height",
	"first-slice":      "plot.first_slice",
	"last-slice":       "plot.last_slice",
	"xmin":             "plot.xmin",
	"xmax":             "plot.xmax",
	"ymin":             "plot.ymin",
	"ymax":             "plot.ymax",
	"location":         "plot.location",
	"bunch":            "plot.bunch",
	"bins":             "plot.bins",
	"x":                "plot.x",
	"y":                "plot.y",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"check-strictness": "check_strictness",
	"metrics-file":     "metrics_file",
	"archive":          "archive",
	"catalog":          "catalog",
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		g_error.External("%s", err.Error())
	}
}

// session is the state shared by every mode once the configuration has been
// read.
type session struct {
	args *lib.Args
	log  *slog.Logger
	out  io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var configFile string
	s := &session{out: stdout}

	root := &cobra.Command{
		Use:   "impact",
		Short: "Read, summarize, and plot Impact-T output",
		Long: `impact loads the output of an Impact-T run: the fort.11 step log,
the fort.N phase-space files at the start, end and each BPM, and the rfqK.dst
end-slice dumps.

Configuration is read from impact.yaml (or --config), IMPACT_* environment
variables, and flags, in increasing order of precedence.`,
		Version:       fmt.Sprintf("%d", lib.Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			args, err := loadArgs(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			log, err := lib.NewLogger(stderr, args.LogLevel, args.LogFormat)
			if err != nil {
				return err
			}
			s.args, s.log = args, log
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if s.args.MetricsFile == "" {
				return nil
			}
			return metrics.WriteTextfile(s.args.MetricsFile)
		},
	}

	fs := root.PersistentFlags()
	fs.StringVar(&configFile, "config", "", "config file (default: impact.yaml in . or ./config)")
	addFlags(fs)

	root.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Check the configuration against the run directory",
			Args:  cobra.NoArgs,
			RunE:  func(_ *cobra.Command, _ []string) error { return s.check() },
		},
		&cobra.Command{
			Use:   "print",
			Short: "Load the run and print a summary of every table",
			Args:  cobra.NoArgs,
			RunE:  func(_ *cobra.Command, _ []string) error { return s.print() },
		},
		&cobra.Command{
			Use:   "plot",
			Short: "Load the run and draw the plots listed in plot.kinds",
			Args:  cobra.NoArgs,
			RunE:  func(_ *cobra.Command, _ []string) error { return s.plot() },
		},
		&cobra.Command{
			Use:   "convert",
			Short: "Load the run and write it to a compressed archive",
			Args:  cobra.NoArgs,
			RunE:  func(_ *cobra.Command, _ []string) error { return s.convert() },
		},
		&cobra.Command{
			Use:   "confirm",
			Short: "Check that an archive matches the run it was made from",
			Args:  cobra.NoArgs,
			RunE:  func(_ *cobra.Command, _ []string) error { return s.confirm() },
		},
		&cobra.Command{
			Use:   "export [name]",
			Short: "Load the run and add it to the SQLite catalog",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, names []string) error {
				name := ""
				if len(names) > 0 {
					name = names[0]
				}
				return s.export(cmd.Context(), name)
			},
		},
	)

	return root
}

func addFlags(fs *pflag.FlagSet) {
	fs.String("run-dir", ".", "directory containing the Impact-T output")
	fs.String("variant", "standard", "'standard' or 'rfq'")
	fs.Int("bunch-count", 1, "number of bunches, 1 to 99")
	fs.StringSlice("bunch-names", nil, "display names of the bunches")
	fs.String("bpm-list", "", "BPM locations to load, e.g. '41..45 + 47 - 43'")
	fs.Int("cell-count", 0, "number of RFQ cells")
	fs.String("step-log", "", "name of the step log")
	fs.String("phase-space", "", "file format of the phase-space files")
	fs.String("end-slice", "", "file format of the .dst files")

	fs.StringSlice("plots", nil, fmt.Sprintf("plots to draw, from %v", lib.PlotKinds))
	fs.String("output-dir", "", "directory plots are written to")
	fs.String("format", "", "plot format: eps, pdf, svg, png, or html")
	fs.Int("width", 0, "width of xy plots in points")
	fs.Int("height", 0, "height of xy plots in points")
	fs.Int("first-slice", 0, "first slice of the bunch plot (default: the run's)")
	fs.Int("last-slice", 0, "last slice of the bunch plot (default: the run's)")
	fs.Float64("xmin", 0, "x-axis minimum")
	fs.Float64("xmax", 0, "x-axis maximum")
	fs.Float64("ymin", 0, "y-axis minimum")
	fs.Float64("ymax", 0, "y-axis maximum")
	fs.Int("location", 0, "phase-space plot location (default: start and end)")
	fs.Int("bunch", 0, "phase-space plot bunch (default: every bunch)")
	fs.Int("bins", 0, "number of final energy bins")
	fs.String("x", "", "x column of the xy plot, as table.column")
	fs.String("y", "", "y column of the xy plot, as table.column")

	fs.String("log-level", "", "debug, info, warn, or error")
	fs.String("log-format", "", "text or json")
	fs.String("check-strictness", "", "'crash' or 'warn'")
	fs.String("metrics-file", "", "write Prometheus metrics to this file")
	fs.String("archive", "", "archive file used by convert and confirm")
	fs.String("catalog", "", "SQLite catalog used by export")
}

// loadArgs reads the config file and environment, overwrites them with any
// flags which were set, and processes the result.
func loadArgs(configFile string, fs *pflag.FlagSet) (*lib.Args, error) {
	raw, err := lib.ParseConfigFile(configFile)
	if err != nil {
		return nil, err
	}
	flags, err := lib.ParseFlags(fs, flagKeys)
	if err != nil {
		return nil, err
	}
	raw.Overwrite(flags)
	return raw.Process()
}
