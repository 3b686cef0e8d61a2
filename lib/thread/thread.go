/*package thread contains functions useful for multi-threading.
*/
package thread

import (
	"runtime"

	shc_error "github.com/thermalab/shc/lib/error"
)

// Set sets the number of OS threads available to the worker pool. n = -1
// means "use every core on the node."
func Set(n int) {
	if n == -1 {
		n = runtime.NumCPU()
	} else if n > runtime.NumCPU() {
		shc_error.External("%d threads requested, but your system only has %d cores per node. If you want shc to use the maximum number of threads per node, set Threads=-1.", n, runtime.NumCPU())
	}

	runtime.GOMAXPROCS(n)
}
