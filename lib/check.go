package lib

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/phil-mansfield/impact/lib/data"
	g_error "github.com/phil-mansfield/impact/lib/error"
	"github.com/phil-mansfield/impact/lib/impactio"
)

/* check.go contains the core functions of impact's "check" mode. */

// Problem is something wrong with a configuration. Warnings don't stop a run
// from loading, e.g. a missing BPM file.
type Problem struct {
	Err     error
	Warning bool
}

// Problems checks args against the files in the run directory without
// reading them.
func Problems(args *Args) []Problem {
	out := []Problem{}
	fail := func(err error) { out = append(out, Problem{Err: err}) }
	warn := func(err error) { out = append(out, Problem{err, true}) }

	l := args.Layout
	info, err := os.Stat(l.Dir)
	if err != nil {
		fail(g_error.NotFoundf("the run directory %s does not exist", l.Dir))
		return out
	} else if !info.IsDir() {
		fail(g_error.InvalidArgumentf("run_dir is %s, which is not a "+
			"directory", l.Dir))
		return out
	}

	if err := checkFile(l.StepLogPath()); err != nil {
		fail(err)
	}

	for bunch := 1; bunch <= args.BunchCount; bunch++ {
		for _, loc := range []int{impactio.StartLocation, impactio.EndLocation} {
			if err := checkFile(l.PhaseSpacePath(bunch, loc)); err != nil {
				fail(err)
			}
		}
		for _, loc := range args.BPMList {
			if err := checkFile(l.PhaseSpacePath(bunch, loc)); err != nil {
				warn(err)
			}
		}
	}

	if args.Variant == data.RFQ {
		for bunch := 1; bunch <= args.BunchCount; bunch++ {
			if err := checkFile(l.EndSlicePath(bunch)); err != nil {
				fail(err)
			}
		}
	}

	p := args.Plot
	if p.Location != 0 && p.Location != impactio.StartLocation &&
		p.Location != impactio.EndLocation && !containsInt(args.BPMList, p.Location) {
		fail(g_error.InvalidArgumentf("plot.location is %d, which is "+
			"neither the start, the end, nor in bpm_list", p.Location))
	}
	if info, err := os.Stat(p.OutputDir); err == nil && !info.IsDir() {
		fail(g_error.InvalidArgumentf("plot.output_dir is %s, which is not "+
			"a directory", p.OutputDir))
	}

	return out
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return g_error.NotFoundf("the file %s does not exist", path)
	} else if err != nil {
		return err
	} else if info.IsDir() {
		return g_error.InvalidArgumentf("%s is a directory, not a file", path)
	}
	return nil
}

func containsInt(x []int, n int) bool {
	for i := range x {
		if x[i] == n {
			return true
		}
	}
	return false
}

// Check runs the impact "check" command on the provided Args. This function
// will either crash upon encountering errors or will log warnings, depending
// on what CheckStrictness is set to in args. If Check completes, it returns
// true if all tests passed and false otherwise. Warnings are always logged and
// never fail the check.
func Check(args *Args, log *slog.Logger) bool {
	return CheckProblems(args, Problems(args), log)
}

// CheckProblems is Check for a list of problems which has already been
// computed by Problems.
func CheckProblems(args *Args, problems []Problem, log *slog.Logger) bool {
	ok := true
	for _, p := range problems {
		switch {
		case p.Warning:
			log.Warn("check warning", "problem", p.Err.Error())
		case args.CheckStrictness == CrashOnError:
			g_error.External("%s", p.Err.Error())
		default:
			log.Error("check failed", "problem", p.Err.Error())
			ok = false
		}
	}
	return ok
}

// Summary describes a list of problems in one line.
func Summary(problems []Problem) string {
	errs, warns := 0, 0
	for _, p := range problems {
		if p.Warning {
			warns++
		} else {
			errs++
		}
	}
	return fmt.Sprintf("%d errors, %d warnings", errs, warns)
}
