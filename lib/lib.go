/*package lib contains the configuration and "check" code shared by impact's
modes. Almost all of the heavy lifting is done by lib/'s subpackages:

   impactio - readers for fort.11, fort.N, and rfqK.dst files.
   data     - the in-memory tables built from a run directory.
   plot     - plot requests, styles, and renderers.
   archive  - the compressed archive written by "convert".
   catalog  - the SQLite catalog written by "export".
*/
package lib

var (
	// Version is the version of the software. This can potentially be used
	// to differentiate between breaking changes to the archive format.
	Version uint64 = 0x1
)
