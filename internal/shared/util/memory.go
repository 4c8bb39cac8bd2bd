package util

import (
	"runtime"
)

// GetHeapAllocMB returns the current heap allocation in MB. Source caches
// compare it against their configured ceiling before releasing soft entries.
func GetHeapAllocMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}
