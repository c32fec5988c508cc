package utils

import (
	"fmt"
	"runtime"
)

// MemStats is the part of runtime.MemStats reported after a run, in MiB.
type MemStats struct {
	Alloc, TotalAlloc, Sys uint64
	NumGC                  uint32
}

func ReadMemStats() (ms MemStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	const mb = 1 << 20
	return MemStats{
		Alloc:      m.Alloc / mb,
		TotalAlloc: m.TotalAlloc / mb,
		Sys:        m.Sys / mb,
		NumGC:      m.NumGC,
	}
}

func (ms MemStats) String() string {
	return fmt.Sprintf("Alloc = %v MiB TotalAlloc = %v MiB Sys = %v MiB NumGC = %v",
		ms.Alloc, ms.TotalAlloc, ms.Sys, ms.NumGC)
}

func GetMemUsage() string { return ReadMemStats().String() }
