package znode

import (
	"time"

	"github.com/ValentinKolb/dKeeper/cmd/util"
	"github.com/ValentinKolb/dKeeper/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	session *client.RPCSession

	// ZnodeCommands represents the znode command group
	ZnodeCommands = &cobra.Command{
		Use:                "znode",
		Short:              "Perform znode operations",
		PersistentPreRunE:  setupSession,
		PersistentPostRunE: closeSession,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the znode command
	util.SetupRPCClientFlags(ZnodeCommands)

	ZnodeCommands.PersistentFlags().Uint64("shard", 1, util.WrapString("ID of the shard to connect to"))
	ZnodeCommands.PersistentFlags().Int64("session-timeout", 10000, util.WrapString("The requested session timeout in milliseconds"))

	// Add subcommands
	ZnodeCommands.AddCommand(createCmd)
	ZnodeCommands.AddCommand(getCmd)
	ZnodeCommands.AddCommand(setCmd)
	ZnodeCommands.AddCommand(deleteCmd)
	ZnodeCommands.AddCommand(existsCmd)
	ZnodeCommands.AddCommand(lsCmd)
}

// setupSession connects to the server and opens a session
func setupSession(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	shardId := util.GetShardID()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Open the session
	session, err = client.NewRPCSession(
		shardId,
		*config,
		t,
		s,
		time.Duration(viper.GetInt64("session-timeout"))*time.Millisecond,
	)

	return err
}

// closeSession closes the session, ephemeral nodes of the command are removed
func closeSession(_ *cobra.Command, _ []string) error {
	if session == nil {
		return nil
	}
	return session.Close()
}
