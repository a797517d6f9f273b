package lib

import (
	"strings"

	g_error "github.com/phil-mansfield/impact/lib/error"
)

// CheckStrictness indicates how functions related to the "check" impact mode
// should behave when it encounters an error.
type CheckStrictness int

const (
	CrashOnError CheckStrictness = iota
	WarnOnError
)

// ParseCheckStrictness converts the check_strictness config variable to a
// CheckStrictness.
func ParseCheckStrictness(s string) (CheckStrictness, error) {
	switch strings.ToLower(s) {
	case "crash", "":
		return CrashOnError, nil
	case "warn":
		return WarnOnError, nil
	}
	return CrashOnError, g_error.InvalidArgumentf("check_strictness is "+
		"'%s', but the only valid values are 'crash' and 'warn'", s)
}

func (s CheckStrictness) String() string {
	if s == WarnOnError {
		return "warn"
	}
	return "crash"
}
