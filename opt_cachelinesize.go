//go:build !weakc_opt_cachelinesize_64 && !weakc_opt_cachelinesize_128

package weakc

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used in structure padding so that collections owned by
// different event loops do not share a cache line.
// It's automatically calculated using the `golang.org/x/sys` package.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})
