//go:build !memprof

package fourlw

func memoryProfilerCommands(MemoryProfiler) []Command {
	return nil
}
