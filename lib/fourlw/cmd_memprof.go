//go:build memprof

package fourlw

// The memory profiler commands are only compiled in with the memprof build tag.
func memoryProfilerCommands(mp MemoryProfiler) []Command {
	return []Command{
		NewMemoryDumpStatsCommand(mp),
		NewMemoryFlushProfileCommand(mp),
		NewMemoryEnableProfileCommand(mp),
		NewMemoryDisableProfileCommand(mp),
	}
}

// NewMemoryDumpStatsCommand dumps the runtime memory statistics.
func NewMemoryDumpStatsCommand(mp MemoryProfiler) Command {
	return NewCommand(MemoryDumpStatsName, mp.MemoryStats)
}

// NewMemoryFlushProfileCommand writes the current heap profile to disk and
// returns the file name.
func NewMemoryFlushProfileCommand(mp MemoryProfiler) Command {
	return NewCommand(MemoryFlushProfileName, func() string {
		path, err := mp.FlushHeapProfile()
		if err != nil {
			return errorLine(MemoryFlushProfileName, err)
		}
		return path
	})
}

// NewMemoryEnableProfileCommand enables heap profile sampling.
func NewMemoryEnableProfileCommand(mp MemoryProfiler) Command {
	return NewCommand(MemoryEnableProfileName, func() string {
		if err := mp.EnableHeapProfiling(); err != nil {
			return errorLine(MemoryEnableProfileName, err)
		}
		return "ok"
	})
}

// NewMemoryDisableProfileCommand disables heap profile sampling.
func NewMemoryDisableProfileCommand(mp MemoryProfiler) Command {
	return NewCommand(MemoryDisableProfileName, func() string {
		if err := mp.DisableHeapProfiling(); err != nil {
			return errorLine(MemoryDisableProfileName, err)
		}
		return "ok"
	})
}
