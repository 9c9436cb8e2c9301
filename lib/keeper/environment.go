package keeper

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/ValentinKolb/dKeeper/lib/fourlw"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"
)

// --------------------------------------------------------------------------
// Process environment (envi, mntr, dirs)
// --------------------------------------------------------------------------

// Environment describes the host and the user running the process.
func (k *Keeper) Environment() (fourlw.Environment, error) {
	info, err := host.Info()
	if err != nil {
		return fourlw.Environment{}, fmt.Errorf("failed to read host info: %w", err)
	}
	cpus, err := cpu.Counts(true)
	if err != nil {
		cpus = runtime.NumCPU()
	}

	env := fourlw.Environment{
		HostName:  info.Hostname,
		OSName:    info.OS,
		OSArch:    info.KernelArch,
		OSVersion: info.KernelVersion,
		CPUCount:  cpus,
		UserTmp:   os.TempDir(),
	}
	if env.OSArch == "" {
		env.OSArch = runtime.GOARCH
	}
	if u, err := user.Current(); err == nil {
		env.UserName = u.Username
		env.UserHome = u.HomeDir
	}
	if dir, err := os.Getwd(); err == nil {
		env.UserDir = dir
	}
	return env, nil
}

// FileDescriptors returns the number of open file descriptors of the process
// and the soft limit. Not every platform supports this.
func (k *Keeper) FileDescriptors() (int64, int64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0, err
	}
	open, err := p.NumFDs()
	if err != nil {
		return 0, 0, err
	}
	limits, err := p.Rlimit()
	if err != nil {
		return 0, 0, err
	}
	for _, l := range limits {
		if l.Resource == process.RLIMIT_NOFILE {
			return int64(open), int64(l.Soft), nil
		}
	}
	return 0, 0, fmt.Errorf("no open file limit reported")
}

// DataDirSizes returns the size of the snapshot and the log directory in bytes.
func (k *Keeper) DataDirSizes() (int64, int64, error) {
	snapshots, err := dirSize(k.cfg.SnapshotDir)
	if err != nil {
		return 0, 0, err
	}
	logs, err := dirSize(k.cfg.LogDir)
	if err != nil {
		return 0, 0, err
	}
	return snapshots, logs, nil
}

// dirSize sums up the size of all regular files below dir, a missing dir has size 0
func dirSize(dir string) (int64, error) {
	if dir == "" {
		return 0, nil
	}
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // removed while walking
		}
		size += info.Size()
		return nil
	})
	return size, err
}
