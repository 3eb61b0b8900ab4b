//go:build weakc_opt_cachelinesize_64

package weakc

// CacheLineSize is forced to 64 bytes with the weakc_opt_cachelinesize_64 tag.
const CacheLineSize = 64
