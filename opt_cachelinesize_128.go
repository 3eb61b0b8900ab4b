//go:build weakc_opt_cachelinesize_128

package weakc

// CacheLineSize is forced to 128 bytes with the weakc_opt_cachelinesize_128 tag.
const CacheLineSize = 128
