package fourlw

import (
	"fmt"
	"strings"
)

// Names of the built-in four letter words
const (
	RuokName                 = "ruok"
	MonitorName              = "mntr"
	StatResetName            = "srst"
	NopName                  = "nopc"
	ConfName                 = "conf"
	ConsName                 = "cons"
	ConnStatsResetName       = "crst"
	ServerStatName           = "srvr"
	StatName                 = "stat"
	BriefWatchName           = "wchs"
	WatchBySessionName       = "wchc"
	WatchByPathName          = "wchp"
	DumpName                 = "dump"
	EnviName                 = "envi"
	DataSizeName             = "dirs"
	IsReadOnlyName           = "isro"
	RecoveryName             = "rcvr"
	ApiVersionName           = "apiv"
	CreateSnapshotName       = "csnp"
	LogInfoName              = "lgif"
	RequestLeaderName        = "rqld"
	RecalculateName          = "rclc"
	CleanResourcesName       = "clrs"
	FeatureFlagsName         = "ftfl"
	YieldLeadershipName      = "ydld"
	ProfileEventsName        = "pfev"
	MemoryDumpStatsName      = "jmst"
	MemoryFlushProfileName   = "jmfp"
	MemoryEnableProfileName  = "jmep"
	MemoryDisableProfileName = "jmdp"
)

// DefaultAllowList is the allow list used when none is configured.
const DefaultAllowList = "conf,cons,crst,envi,ruok,srst,srvr,stat,wchs,dirs,mntr,isro,rcvr,apiv,csnp,lgif,rqld,ydld"

// RegisterCommands registers every built-in command backed by k.
// The registry stays in the build phase, the caller publishes it with
// InitializeAllowList afterwards.
func RegisterCommands(r *Registry, k Keeper) error {
	commands := []Command{
		NewRuokCommand(),
		NewMonitorCommand(k, k, k, k, k),
		NewStatResetCommand(k),
		NewNopCommand(),
		NewConfCommand(k),
		NewConsCommand(k),
		NewConnStatsResetCommand(k),
		NewServerStatCommand(k, k, k, k),
		NewStatCommand(k, k, k, k, k),
		NewBriefWatchCommand(k),
		NewWatchBySessionCommand(k),
		NewWatchByPathCommand(k),
		NewDumpCommand(k),
		NewEnviCommand(k, k),
		NewDataSizeCommand(k),
		NewIsReadOnlyCommand(k),
		NewRecoveryCommand(k),
		NewApiVersionCommand(k),
		NewCreateSnapshotCommand(k),
		NewLogInfoCommand(k),
		NewRequestLeaderCommand(k),
		NewRecalculateCommand(k),
		NewCleanResourcesCommand(k),
		NewFeatureFlagsCommand(k),
		NewYieldLeadershipCommand(k),
		NewProfileEventsCommand(k),
	}
	commands = append(commands, memoryProfilerCommands(k)...)

	for _, cmd := range commands {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// NewNopCommand returns the fallback command used for disallowed commands.
func NewNopCommand() Command {
	return NewCommand(NopName, func() string {
		return "This command is not executed: it is not in the four letter word allow list.\n"
	})
}

// --------------------------------------------------------------------------
// Formatting helpers
// --------------------------------------------------------------------------

// formatSessionID renders a session id the way all dumps do (0x + 16 hex digits)
func formatSessionID(id int64) string {
	return fmt.Sprintf("0x%016x", uint64(id))
}

// tabLine writes "key<TAB>value\n"
func tabLine(sb *strings.Builder, key string, value any) {
	fmt.Fprintf(sb, "%s\t%v\n", key, value)
}
