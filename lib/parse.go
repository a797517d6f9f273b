package lib

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phil-mansfield/impact/lib/archive"
	"github.com/phil-mansfield/impact/lib/catalog"
	"github.com/phil-mansfield/impact/lib/data"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/format"
	"github.com/phil-mansfield/impact/lib/impactio"
	"github.com/phil-mansfield/impact/lib/plot"
)

const (
	// ConfigName is the config file name without an extension.
	ConfigName = "impact"
	configType = "yaml"
	envPrefix  = "IMPACT"
)

// PlotKinds are the values allowed in plot.kinds.
var PlotKinds = []string{"bunch", "phase", "energy", "xy"}

// RawArgs stores the unprocessed values which the user assigned to each config
// variable.
type RawArgs struct {
	RunDir          string     `mapstructure:"run_dir"`
	Variant         string     `mapstructure:"variant"`
	BunchCount      int        `mapstructure:"bunch_count"`
	BunchNames      []string   `mapstructure:"bunch_names"`
	BPMList         string     `mapstructure:"bpm_list"`
	CellCount       int        `mapstructure:"cell_count"`
	Files           RawFiles   `mapstructure:"files"`
	Plot            RawPlot    `mapstructure:"plot"`
	Logging         RawLogging `mapstructure:"logging"`
	CheckStrictness string     `mapstructure:"check_strictness"`
	MetricsFile     string     `mapstructure:"metrics_file"`
	Archive         string     `mapstructure:"archive"`
	Catalog         string     `mapstructure:"catalog"`

	// set holds the keys given explicitly. It is only used by Overwrite.
	set map[string]bool
}

// RawFiles are the file names of a run. PhaseSpace and EndSlice are file
// formats.
type RawFiles struct {
	StepLog    string `mapstructure:"step_log"`
	PhaseSpace string `mapstructure:"phase_space"`
	EndSlice   string `mapstructure:"end_slice"`
}

// RawPlot configures the plot mode. Nil slices mean the run's defaults.
type RawPlot struct {
	Kinds      []string `mapstructure:"kinds"`
	OutputDir  string   `mapstructure:"output_dir"`
	Format     string   `mapstructure:"format"`
	Width      int      `mapstructure:"width"`
	Height     int      `mapstructure:"height"`
	FirstSlice *int     `mapstructure:"first_slice"`
	LastSlice  *int     `mapstructure:"last_slice"`
	XMin       float64  `mapstructure:"xmin"`
	XMax       float64  `mapstructure:"xmax"`
	YMin       float64  `mapstructure:"ymin"`
	YMax       float64  `mapstructure:"ymax"`
	Location   int      `mapstructure:"location"`
	Bunch      int      `mapstructure:"bunch"`
	Bins       int      `mapstructure:"bins"`
	// X and Y are "table.column" names used by the xy plot.
	X string `mapstructure:"x"`
	Y string `mapstructure:"y"`
}

type RawLogging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Args stores configuration information. It is a post-processed version of
// RawArgs.
type Args struct {
	Variant    data.Variant
	BunchCount int
	BunchNames []string
	BPMList    []int
	CellCount  int
	Layout     *impactio.Layout

	Plot PlotArgs

	LogLevel, LogFormat string
	CheckStrictness     CheckStrictness

	MetricsFile, Archive, Catalog string
}

// PlotArgs are the processed plot.* variables.
type PlotArgs struct {
	Kinds                 []string
	OutputDir, Format     string
	Canvas                plot.Canvas
	// FirstSlice and LastSlice are nil unless they were set.
	FirstSlice, LastSlice *int
	Axes                  plot.Axes
	Location, Bunch, Bins int
	XTable, XColumn       string
	YTable, YColumn       string
}

// Config converts Args to the configuration of a data.Data.
func (args *Args) Config() data.Config {
	return data.Config{
		Variant:    args.Variant,
		BunchCount: args.BunchCount,
		BunchNames: args.BunchNames,
		CellCount:  args.CellCount,
		Layout:     args.Layout,
	}
}

// NewViper creates a viper instance with impact's defaults and environment
// variables applied. Nested keys are read from variables like
// IMPACT_PLOT_FORMAT.
func NewViper() *viper.Viper {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults are only read from the environment if bound.
	for _, key := range []string{"plot.first_slice", "plot.last_slice"} {
		if err := v.BindEnv(key); err != nil {
			g_error.Internal("%s", err.Error())
		}
	}
	return v
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("run_dir", ".")
	v.SetDefault("variant", "standard")
	v.SetDefault("bunch_count", 1)
	v.SetDefault("bunch_names", []string{})
	v.SetDefault("bpm_list", "")
	v.SetDefault("cell_count", 0)

	v.SetDefault("files.step_log", impactio.DefaultStepLog)
	v.SetDefault("files.phase_space", impactio.DefaultPhaseSpace)
	v.SetDefault("files.end_slice", impactio.DefaultEndSlice)

	v.SetDefault("plot.kinds", []string{"bunch", "phase", "energy"})
	v.SetDefault("plot.output_dir", "plots")
	v.SetDefault("plot.format", "png")
	v.SetDefault("plot.width", 0)
	v.SetDefault("plot.height", 0)
	v.SetDefault("plot.xmin", 0.0)
	v.SetDefault("plot.xmax", 0.0)
	v.SetDefault("plot.ymin", 0.0)
	v.SetDefault("plot.ymax", 0.0)
	v.SetDefault("plot.location", 0)
	v.SetDefault("plot.bunch", 0)
	v.SetDefault("plot.bins", 0)
	v.SetDefault("plot.x", "bunches.z")
	v.SetDefault("plot.y", "bunches.n1")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("check_strictness", "crash")
	v.SetDefault("metrics_file", "")
	v.SetDefault("archive", archive.DefaultName)
	v.SetDefault("catalog", catalog.DefaultName)
}

// ParseConfigFile reads the config file fileName on top of the defaults and
// environment variables. If fileName is empty, impact.yaml is searched for in
// "." and "./config". A missing config file is not an error.
func ParseConfigFile(fileName string) (*RawArgs, error) {
	v := NewViper()
	if fileName != "" {
		v.SetConfigFile(fileName)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if fileName != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: cannot read config file: %s",
				g_error.InvalidArgument, err.Error())
		}
	}

	return unmarshal(v)
}

// ParseFlags reads the flags in fs which were set on the command line.
// flagKeys maps flag names to config keys. Only changed flags are marked as
// set, so the result can be passed to Overwrite.
func ParseFlags(fs *pflag.FlagSet, flagKeys map[string]string) (*RawArgs, error) {
	v := viper.New()
	set := map[string]bool{}

	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
		set[key] = true
	})
	if bindErr != nil {
		return nil, bindErr
	}

	args, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	args.set = set
	return args, nil
}

func unmarshal(v *viper.Viper) (*RawArgs, error) {
	args := &RawArgs{}
	if err := v.Unmarshal(args); err != nil {
		return nil, fmt.Errorf("%w: cannot decode config: %s",
			g_error.InvalidArgument, err.Error())
	}
	return args, nil
}

// Overwrite arguments in arg1 which were explicitly set in arg2.
func (arg1 *RawArgs) Overwrite(arg2 *RawArgs) {
	overwrite(reflect.ValueOf(arg1).Elem(), reflect.ValueOf(arg2).Elem(),
		"", arg2.set)
}

func overwrite(dst, src reflect.Value, prefix string, set map[string]bool) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := prefix + tag
		if field.Type.Kind() == reflect.Struct {
			overwrite(dst.Field(i), src.Field(i), key+".", set)
		} else if set[key] {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

// Process converts the raw user input to a format which is more useful for
// internal functions. Very simple validation will be done here, but nothing
// which requires interacting with external files.
func (args *RawArgs) Process() (*Args, error) {
	out := &Args{
		BunchCount:  args.BunchCount,
		BunchNames:  args.BunchNames,
		CellCount:   args.CellCount,
		LogLevel:    args.Logging.Level,
		LogFormat:   args.Logging.Format,
		MetricsFile: args.MetricsFile,
		Archive:     args.Archive,
		Catalog:     args.Catalog,
	}

	var err error
	if out.Variant, err = data.ParseVariant(args.Variant); err != nil {
		return nil, err
	}
	if err := impactio.CheckBunchCount(args.BunchCount); err != nil {
		return nil, err
	}
	if args.CellCount < 0 {
		return nil, g_error.InvalidArgumentf("cell_count is %d, but it "+
			"cannot be negative", args.CellCount)
	}

	if out.BPMList, err = format.ExpandLocationFormat(args.BPMList); err != nil {
		return nil, fmt.Errorf("bpm_list: %w", err)
	}
	for _, loc := range out.BPMList {
		if loc == impactio.StartLocation || loc == impactio.EndLocation {
			return nil, g_error.InvalidArgumentf("bpm_list contains %d, "+
				"which is reserved for the start and end of the run", loc)
		}
	}

	out.Layout, err = impactio.NewLayout(args.RunDir, args.Files.StepLog,
		args.Files.PhaseSpace, args.Files.EndSlice)
	if err != nil {
		return nil, err
	}

	if out.CheckStrictness, err = ParseCheckStrictness(
		args.CheckStrictness); err != nil {
		return nil, err
	}
	if _, err := NewLogger(io.Discard, args.Logging.Level,
		args.Logging.Format); err != nil {
		return nil, err
	}

	if out.Plot, err = args.Plot.process(out.BunchCount); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *RawPlot) process(bunchCount int) (PlotArgs, error) {
	out := PlotArgs{
		Kinds:      p.Kinds,
		OutputDir:  p.OutputDir,
		Format:     strings.ToLower(p.Format),
		Canvas:     plot.Canvas{Width: p.Width, Height: p.Height},
		FirstSlice: p.FirstSlice,
		LastSlice:  p.LastSlice,
		Axes:       plot.Axes{XMin: p.XMin, XMax: p.XMax, YMin: p.YMin, YMax: p.YMax},
		Location:   p.Location,
		Bunch:      p.Bunch,
		Bins:       p.Bins,
	}

	for _, kind := range p.Kinds {
		if !contains(PlotKinds, kind) {
			return out, g_error.InvalidArgumentf("plot.kinds contains '%s', "+
				"but the only plot kinds are %v", kind, PlotKinds)
		}
	}
	if !contains(plot.Formats, out.Format) {
		return out, g_error.InvalidArgumentf("plot.format is '%s', but the "+
			"supported formats are %v", p.Format, plot.Formats)
	}
	if p.Width < 0 || p.Height < 0 {
		return out, g_error.InvalidArgumentf("the plot size is %dx%d, but "+
			"sizes cannot be negative", p.Width, p.Height)
	}
	for _, slice := range []struct {
		key string
		i   *int
	}{{"plot.first_slice", p.FirstSlice}, {"plot.last_slice", p.LastSlice}} {
		if slice.i != nil && *slice.i < 0 {
			return out, g_error.InvalidArgumentf("%s is %d, but slices "+
				"cannot be negative", slice.key, *slice.i)
		}
	}
	if p.FirstSlice != nil && p.LastSlice != nil && *p.FirstSlice > *p.LastSlice {
		return out, g_error.InvalidArgumentf("plot.first_slice is %d, which "+
			"is after plot.last_slice, %d", *p.FirstSlice, *p.LastSlice)
	}
	if p.Bins < 0 {
		return out, g_error.InvalidArgumentf("plot.bins is %d, but it "+
			"cannot be negative", p.Bins)
	}
	if p.Bunch != 0 {
		if err := impactio.CheckBunch(p.Bunch, bunchCount); err != nil {
			return out, fmt.Errorf("plot.bunch: %w", err)
		}
	}

	var err error
	out.XTable, out.XColumn, err = splitColumnName("plot.x", p.X)
	if err != nil {
		return out, err
	}
	out.YTable, out.YColumn, err = splitColumnName("plot.y", p.Y)
	if err != nil {
		return out, err
	}
	return out, nil
}

// splitColumnName splits a "table.column" name at its last dot, since phase
// table names contain dots themselves.
func splitColumnName(key, name string) (table, column string, err error) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", "", g_error.InvalidArgumentf("%s is '%s', but it must "+
			"have the form 'table.column'", key, name)
	}
	return name[:i], name[i+1:], nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
