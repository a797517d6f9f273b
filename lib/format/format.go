/*package format handles impact's miniature formatting languages for the lists
of diagnostic locations and for the names of Impact-T output files, e.g:

   BPMList   = "41..45 + 47 - 43"
   PhaseSpace = "fort.{%d,file}"
   EndSlice   = "rfq{%d,bunch}.dst"

Sequence formats are a generic way to specify non-contiguous sequences of
natural numbers. They consist of a series of n tokens separated by "+" or "-".
Each token can be either a number or two numbers separted by "..". E.g.:

  100
  0..100
  0..10 + 100
  0..100 - 63 - 10..20

These strings build up sequences of numbers by adding/removing individual
numbers and contiguous sequences. For example, 0 through 10 would be 0..10,
1, 2, 3, 15, 16, 17 could be written as  1..17 - 4..13. This is useful for
skipping BPMs that weren't written out by a particular run.

File formats are a combination of fixed text and variables. Fixed text is
always the same, and variables can change from file to file. Variables are
written as {verb,rule}. "verb" is a printf() verb (e.g. %d, %03d) that
specifies how the variable should be printed. "rule" says which value the
variable takes on:

  "bunch" - The 1-indexed bunch number.
  "location" - The location (BPM) number.
  "file" - The Impact-T file number, location + bunch - 1.

All spaces around "-", "+", and "," symbols are ignored.
*/
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	g_error "github.com/phil-mansfield/impact/lib/error"
)

const (
	// Any expanded formats which would have more than BigNumber elements are
	// assumed to be bugs.
	BigNumber = 1 << 20
)

// ExpandSequenceFormat expands a sequence format string into a sorted sequence
// of integers.
func ExpandSequenceFormat(format string) ([]int, error) {
	// Parse and error-check the format string.
	tok, err := tokeniseSequenceFormat(format)
	if err != nil {
		return nil, err
	}
	adds, subs, err := addsSubsSequenceFormat(tok)
	if err != nil {
		return nil, err
	}

	// Count the additions before expanding any of them.
	size := 0
	for i := range adds {
		size += sequenceFormatTokenSize(adds[i])
		if size > BigNumber {
			return nil, g_error.InvalidArgumentf("this sequence would have "+
				"more than %d elements, which is almost certianly a bug",
				BigNumber)
		}
	}

	// Add numbers to the sequence.
	m := map[int]int{}
	for i := range adds {
		for _, n := range parseSequenceFormatToken(adds[i]) {
			if _, ok := m[n]; ok {
				return nil, g_error.InvalidArgumentf(
					"the number %d is added more than once", n)
			}
			m[n] = n
		}
	}

	// Remove numbers from the sequence.
	for i := range subs {
		for _, n := range parseSequenceFormatToken(subs[i]) {
			if _, ok := m[n]; !ok {
				return nil, g_error.InvalidArgumentf("the number %d is "+
					"removed more times than it was inserted", n)
			}
			delete(m, n)
		}
	}

	// Convert to a sorted array of integers.
	out := []int{}
	for n := range m {
		out = append(out, n)
	}
	sort.Ints(out)

	return out, nil
}

// ExpandLocationFormat expands the format string giving the BPM locations
// that should be loaded alongside the start and end of the simulation. It
// takes the same form as ExpandSequenceFormat, except that an empty string
// is valid and means no BPMs.
func ExpandLocationFormat(format string) ([]int, error) {
	if strings.TrimSpace(format) == "" {
		return []int{}, nil
	}

	locs, err := ExpandSequenceFormat(format)
	if err != nil {
		return nil, fmt.Errorf("the BPM list '%s' is not valid: %w",
			format, err)
	}
	return locs, nil
}

// tokeniseSequenceFormat tokenizes a sequence format string. This means that
// it separates all the operators and operands into their own strings.
func tokeniseSequenceFormat(format string) ([]string, error) {
	// Make sure all operators are separated by spaces.
	formatClean := strings.ReplaceAll(format, "+", " + ")
	formatClean = strings.ReplaceAll(formatClean, "-", " - ")

	// Tokenize and remove empty tokens.
	tok := []string{}
	for _, raw := range strings.Split(formatClean, " ") {
		raw = strings.Trim(raw, " \t")
		if len(raw) > 0 {
			tok = append(tok, raw)
		}
	}

	if len(tok) == 0 {
		return nil, g_error.InvalidArgumentf("the format string is empty")
	}
	return tok, nil
}

func addsSubsSequenceFormat(tok []string) (adds, subs []string, err error) {
	if len(tok) == 0 {
		return nil, nil, g_error.InvalidArgumentf("format string is empty")
	}

	// Handle the case where the starting "+" is dropped.
	adds, subs = []string{}, []string{}
	var start int
	if tok[0] == "+" || tok[0] == "-" {
		start = 0
	} else {
		if err := isSequenceFormatToken(tok[0]); err != nil {
			return nil, nil, g_error.InvalidArgumentf(
				"element number %d, '%s', cannot be parsed because %s",
				1, tok[0], err.Error(),
			)
		}

		adds = append(adds, tok[0])
		start = 1
	}

	for i := start; i < len(tok); i += 2 {
		if tok[i] != "-" && tok[i] != "+" {
			return nil, nil, g_error.InvalidArgumentf(
				"element number %d, '%s', should be a '-' or '+', but isn't",
				i+1, tok[i])
		}

		if i+1 >= len(tok) {
			return nil, nil, g_error.InvalidArgumentf(
				"the format string ends in a trailing '%s'", tok[i],
			)
		}

		if err := isSequenceFormatToken(tok[i+1]); err != nil {
			return nil, nil, g_error.InvalidArgumentf(
				"element number %d, '%s', cannot be parsed because %s",
				i+2, tok[i+1], err.Error(),
			)
		}

		if tok[i] == "+" {
			adds = append(adds, tok[i+1])
		} else {
			subs = append(subs, tok[i+1])
		}
	}

	return adds, subs, nil
}

// isSequenceFormatToken returns a nil error is tok is a valid token for
// a sequence format and an error describing the problem otherwise. The error
// message assumes it is printed after a trailing "because".
func isSequenceFormatToken(tok string) error {
	if len(tok) == 0 {
		return fmt.Errorf("the token is empty")
	}

	bounds := strings.Split(tok, "..")

	switch len(bounds) {
	case 1:
		if _, err := strconv.Atoi(bounds[0]); err != nil {
			return fmt.Errorf("'%s' is not an integer", bounds[0])
		}
		return nil
	case 2:
		start, err := strconv.Atoi(bounds[0])
		if err != nil {
			return fmt.Errorf("'%s' is not an integer", bounds[0])
		}
		end, err := strconv.Atoi(bounds[1])
		if err != nil {
			return fmt.Errorf("'%s' is not an integer", bounds[1])
		}
		if end < start {
			return fmt.Errorf("lower bound %d is larger than upper bound %d",
				start, end)
		}
		return nil
	}
	return fmt.Errorf("it has more than one '..'")
}

// parseSequenceFormatToken parses a single token in a sequence format string
// and returns the corresponding array of numbers. This function assumes that
// the tests in isSequenceFormatToken have already been run and thus does no
// error checking.
// sequenceFormatTokenSize returns the number of integers a token expands to.
// Tokens never contain negative numbers, so end - start cannot overflow.
func sequenceFormatTokenSize(tok string) int {
	bounds := strings.Split(tok, "..")
	if len(bounds) != 2 {
		return 1
	}
	start, _ := strconv.Atoi(bounds[0])
	end, _ := strconv.Atoi(bounds[1])
	if end < start {
		return 0
	}
	if end-start >= BigNumber {
		return BigNumber + 1
	}
	return end - start + 1
}

func parseSequenceFormatToken(tok string) []int {
	bounds := strings.Split(tok, "..")

	switch len(bounds) {
	case 1:
		n, _ := strconv.Atoi(tok)
		return []int{n}
	case 2:
		start, _ := strconv.Atoi(bounds[0])
		end, _ := strconv.Atoi(bounds[1])
		out := make([]int, 0, end-start+1)
		for n := start; n <= end; n++ {
			out = append(out, n)
		}
		return out
	}

	g_error.Internal(
		"Invalid sequence format token, '%s', passed isSequenceFormatToken()",
		tok,
	)
	return nil
}

// Values are the quantities a file format variable can take on.
type Values struct {
	Bunch, Location int
}

// File returns the Impact-T file number associated with a bunch at a given
// location. Impact-T writes bunch b at location n to fort.(n + b - 1).
func (v Values) File() int { return v.Location + v.Bunch - 1 }

// FileFormat is a parsed file format string.
type FileFormat struct {
	format     string
	separators []string // len(separators) == len(verbs) + 1
	verbs      []string
	rules      []string
}

// ParseFileFormat parses and error-checks a file format string.
func ParseFileFormat(format string) (*FileFormat, error) {
	starts, ends, err := startsEndsFormatString(format)
	if err != nil {
		return nil, err
	}

	f := &FileFormat{format: format}
	sepStart := 0
	for i := range starts {
		f.separators = append(f.separators, format[sepStart:starts[i]])
		sepStart = ends[i]

		v := format[starts[i]+1 : ends[i]-1]
		tok := strings.Split(v, ",")
		if len(tok) != 2 {
			return nil, g_error.InvalidArgumentf("the file format '%s' has "+
				"an invalid variable, '{%s}'. Variables should contain a "+
				"formatting verb (e.g. '%%d', '%%03d'), a comma, and a rule "+
				"('bunch', 'location', or 'file')", format, v)
		}

		verb, rule := strings.TrimSpace(tok[0]), strings.TrimSpace(tok[1])
		if len(verb) < 2 || verb[0] != '%' || verb[len(verb)-1] != 'd' {
			return nil, g_error.InvalidArgumentf("the file format '%s' uses "+
				"the verb '%s', but only integer verbs like '%%d' and '%%03d' "+
				"are supported", format, verb)
		}

		switch rule {
		case "bunch", "location", "file":
		default:
			return nil, g_error.InvalidArgumentf("the file format '%s' uses "+
				"the rule '%s', but the only valid rules are 'bunch', "+
				"'location', and 'file'", format, rule)
		}

		f.verbs, f.rules = append(f.verbs, verb), append(f.rules, rule)
	}
	f.separators = append(f.separators, format[sepStart:])

	return f, nil
}

// MustParseFileFormat is like ParseFileFormat but treats failure as an
// internal error. Only use it on compile-time constants.
func MustParseFileFormat(format string) *FileFormat {
	f, err := ParseFileFormat(format)
	if err != nil {
		g_error.Internal("%s", err.Error())
	}
	return f
}

// Expand returns the file name associated with the given values.
func (f *FileFormat) Expand(v Values) string {
	sb := &strings.Builder{}
	for i := range f.verbs {
		sb.WriteString(f.separators[i])

		var n int
		switch f.rules[i] {
		case "bunch":
			n = v.Bunch
		case "location":
			n = v.Location
		case "file":
			n = v.File()
		}
		fmt.Fprintf(sb, f.verbs[i], n)
	}
	sb.WriteString(f.separators[len(f.verbs)])
	return sb.String()
}

// String returns the original format string.
func (f *FileFormat) String() string { return f.format }

// startsEndsFormatString returns the indices of the beginning and end of each
// format variable.
func startsEndsFormatString(format string) (starts, ends []int, err error) {
	starts, ends = []int{}, []int{}
	nestedLevel := 0

	ending := "Make sure variables in file formats are enclosed in " +
		"matching { ... } pairs."

	for i := range format {
		if format[i] == '{' {
			nestedLevel++
			starts = append(starts, i)
		} else if format[i] == '}' {
			nestedLevel--
			ends = append(ends, i+1)
		}

		if nestedLevel > 1 {
			end := len(starts) - 1
			return nil, nil, g_error.InvalidArgumentf("the file format '%s' "+
				"has nested '{' characters at indices %d and %d. %s",
				format, starts[end-1], starts[end], ending)
		} else if nestedLevel < 0 {
			end := len(ends) - 1
			return nil, nil, g_error.InvalidArgumentf("the file format '%s' "+
				"has a '}' that doesn't come after a '{' at index %d. %s",
				format, ends[end]-1, ending)
		}
	}

	if len(ends) != len(starts) {
		end := len(starts) - 1
		return nil, nil, g_error.InvalidArgumentf("the file format '%s' has "+
			"a '{' without a matching '}' at index %d. %s",
			format, starts[end], ending)
	}

	return starts, ends, nil
}
