/*package error contains the error taxonomy shared by impact's packages and
simple functions for reporting fatal errors from the command line tool.

Library code never exits. It returns errors which wrap one of the sentinel
values below, so callers can branch on them with errors.Is:

   _, _, err := impactio.ReadPhaseSpaceAt(layout, bunch, loc)
   if errors.Is(err, g_error.NotFound) { ... skip this location ... }
*/
package error

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

var (
	// InvalidArgument is wrapped by errors caused by bad configuration:
	// out-of-range bunch counts, negative or mis-ordered indices, malformed
	// format strings.
	InvalidArgument = errors.New("invalid argument")
	// NotFound is wrapped by errors caused by an expected file being absent.
	// It is recoverable when scanning optional diagnostic locations.
	NotFound = errors.New("not found")
	// Corrupt is wrapped by errors caused by an archive file that doesn't
	// have the layout impact wrote.
	Corrupt = errors.New("corrupt file")
)

// InvalidArgumentf returns an error wrapping InvalidArgument. It has the same
// signature as fmt.Errorf.
func InvalidArgumentf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", InvalidArgument, fmt.Sprintf(format, a...))
}

// NotFoundf returns an error wrapping NotFound.
func NotFoundf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", NotFound, fmt.Sprintf(format, a...))
}

// Corruptf returns an error wrapping Corrupt.
func Corruptf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", Corrupt, fmt.Sprintf(format, a...))
}

// External reports an error to stderr and kills the program. It should be
// used when an error is something a user could reasonbly be expected to fix
// through changes in configuration/data/environement. It has the same
// signature at the standard fmt.*printf() functions.
func External(format string, a ...interface{}) {
	log.Printf("impact exited early with the following error:\n"+format, a...)
	os.Exit(1)
}

// Internal reports an error to stderr along with a strack trace and kills the
// program. It should be used when the error requires a code dive to fix. It
// has the same signature at the standard fmt.*printf() functions.
func Internal(format string, a ...interface{}) {
	log.Println("impact exited early with the following error:")
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n\n")
	debug.PrintStack()
	os.Exit(1)
}
