package catalog

import (
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
)

// Tunings holds the performance knobs the builder and cache need. This is
// the struct form of the teacher's package-level "performance tuning
// variables" (utils.go SetTunings): a deliberately small, clamped set of
// numbers derived from the host, never exposed as free-form configuration.
type Tunings struct {
	// CacheFrames is the number of 1024-byte page frames the block
	// cache holds resident.
	CacheFrames int

	// Workers is a fan-out width derived from the CPU topology. The
	// builder does not read it: build starts a fixed two goroutines for
	// ingestion and one per index task in sortAndGroupIndexes.
	Workers int

	// RunEntries is the maximum number of (key,value) entries held in
	// memory per external-sort run before it spills to a scratch file
	// (§4.4 default cap: 128 MiB of entries).
	RunEntries int

	// ChanDepth is a channel buffer depth derived from Workers. Nothing
	// reads it; the external sorter's run readers use a fixed buffer of 64.
	ChanDepth int
}

const (
	pageSize = 1024

	// residentBudget is the target resident footprint for the block
	// cache, independent of host RAM (§1 PURPOSE & SCOPE: "roughly one
	// gigabyte of resident memory regardless of input size").
	residentBudgetBytes = 1 << 30 // 1 GiB

	// minCacheFrames is a floor so the cache still functions (if
	// degenerately) on a host that reports very little memory.
	minCacheFrames = 256

	// entrySize is the on-disk width of one index entry (§6: 16-byte
	// key+value pairs), used to size RunEntries from a byte budget.
	entrySize = 16

	defaultRunBudgetBytes = 128 << 20 // 128 MiB, per §4.4
)

// DefaultTunings derives a Tunings value from the host's CPU topology and
// installed memory, the same way the teacher's SetTunings derives numProcs
// and chanDepth from runtime.NumCPU() and cpuid.CPU.ThreadsPerCore.
func DefaultTunings() Tunings {
	nCPU := runtime.NumCPU()
	if nCPU < 1 {
		nCPU = 1
	}

	workers := nCPU
	if cpuid.CPU.ThreadsPerCore > 1 {
		cores := nCPU / cpuid.CPU.ThreadsPerCore
		if cores >= 2 {
			workers = cores
		}
	}
	if workers < 1 {
		workers = 1
	}

	// Cache frames: never claim more than the ~1 GiB budget, and never
	// starve below the floor even if the host reports little RAM —
	// TotalMemory() can only shrink the budget on a small host, it never
	// raises it on a large one.
	total := memory.TotalMemory()
	budget := uint64(residentBudgetBytes)
	if total > 0 && total/4 < budget {
		// Leave headroom: never let the cache alone claim more than a
		// quarter of a small host's RAM.
		budget = total / 4
	}
	frames := int(budget / pageSize)
	if frames < minCacheFrames {
		frames = minCacheFrames
	}

	return Tunings{
		CacheFrames: frames,
		Workers:     workers,
		RunEntries:  defaultRunBudgetBytes / entrySize,
		ChanDepth:   workers * 4,
	}
}
