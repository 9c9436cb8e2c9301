package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dKeeper/cmd/admin"
	"github.com/ValentinKolb/dKeeper/cmd/serve"
	"github.com/ValentinKolb/dKeeper/cmd/util"
	"github.com/ValentinKolb/dKeeper/cmd/znode"
	"github.com/ValentinKolb/dKeeper/lib/keeper"
	"github.com/spf13/cobra"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dkeeper",
		Short: "distributed coordination service",
		Long: fmt.Sprintf(`dKeeper (%s)

A ZooKeeper style coordination service written in Go, replicating a
hierarchical namespace of znodes with RAFT consensus.`, keeper.Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dKeeper",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dKeeper %s (api version %d)\n", keeper.Version, keeper.APIVersion)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(znode.ZnodeCommands)
	RootCmd.AddCommand(admin.FourLetterWordCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
