package keeper

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"time"
)

// defaultMemProfileRate is the sampling rate while heap profiling is enabled
const defaultMemProfileRate = 512 * 1024

// memoryProfiler controls the heap profile of the process
type memoryProfiler struct {
	mu  sync.Mutex
	dir string
}

func newMemoryProfiler(dir string) *memoryProfiler {
	if dir == "" {
		dir = os.TempDir()
	}
	return &memoryProfiler{dir: dir}
}

// MemoryStats dumps the runtime memory statistics.
func (k *Keeper) MemoryStats() string {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	var sb strings.Builder
	add := func(key string, value uint64) {
		fmt.Fprintf(&sb, "%s\t%d\n", key, value)
	}
	add("alloc", ms.Alloc)
	add("total_alloc", ms.TotalAlloc)
	add("sys", ms.Sys)
	add("heap_alloc", ms.HeapAlloc)
	add("heap_sys", ms.HeapSys)
	add("heap_idle", ms.HeapIdle)
	add("heap_inuse", ms.HeapInuse)
	add("heap_released", ms.HeapReleased)
	add("heap_objects", ms.HeapObjects)
	add("stack_inuse", ms.StackInuse)
	add("mallocs", ms.Mallocs)
	add("frees", ms.Frees)
	add("num_gc", uint64(ms.NumGC))
	add("mem_profile_rate", uint64(runtime.MemProfileRate))
	return sb.String()
}

// FlushHeapProfile writes the current heap profile to a new file and returns its path.
func (k *Keeper) FlushHeapProfile() (string, error) {
	k.memprof.mu.Lock()
	defer k.memprof.mu.Unlock()

	if err := os.MkdirAll(k.memprof.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(k.memprof.dir, fmt.Sprintf("dkeeper-heap-%d.pprof", time.Now().UnixNano()))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.Lookup("heap").WriteTo(f, 0); err != nil {
		return "", err
	}
	return path, nil
}

// EnableHeapProfiling starts sampling allocations.
func (k *Keeper) EnableHeapProfiling() error {
	k.memprof.mu.Lock()
	defer k.memprof.mu.Unlock()
	runtime.MemProfileRate = defaultMemProfileRate
	return nil
}

// DisableHeapProfiling stops sampling allocations.
func (k *Keeper) DisableHeapProfiling() error {
	k.memprof.mu.Lock()
	defer k.memprof.mu.Unlock()
	runtime.MemProfileRate = 0
	return nil
}
