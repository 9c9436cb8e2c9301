package znode

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dKeeper/lib/keeper/fsm"
	"github.com/ValentinKolb/dKeeper/rpc/common"
	"github.com/spf13/cobra"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [path] [value]",
		Short: "Creates a node",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value []byte
			if len(args) == 2 {
				value = []byte(args[1])
			}
			ephemeral, _ := cmd.Flags().GetBool("ephemeral")
			created, err := session.Create(args[0], value, ephemeral)
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", created)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Reads the data and the stat of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, stat, err := session.Get(args[0], false)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", value)
			printStat(stat)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [path] [value]",
		Short: "Replaces the data of a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, _ := cmd.Flags().GetInt32("version")
			newVersion, err := session.SetData(args[0], []byte(args[1]), version)
			if err != nil {
				return err
			}
			fmt.Printf("set successfully, version=%d\n", newVersion)
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [path]",
		Short: "Deletes a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, _ := cmd.Flags().GetInt32("version")
			recursive, _ := cmd.Flags().GetBool("recursive")
			if err := session.Delete(args[0], version, recursive); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [path]",
		Short: "Checks if a node exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stat, found, err := session.Exists(args[0], false)
			if err != nil {
				return err
			}
			fmt.Printf("path=%s, found=%t\n", args[0], found)
			if found {
				printStat(stat)
			}
			return nil
		},
	}
	lsCmd = &cobra.Command{
		Use:   "ls [path]",
		Short: "Lists the children of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			children, err := session.Children(args[0], uint8(filter), false)
			if err != nil {
				return err
			}
			fmt.Printf("[%s]\n", strings.Join(children, ", "))
			return nil
		},
	}
)

func init() {
	createCmd.Flags().Bool("ephemeral", false, "Create an ephemeral node, it is removed when the command exits")
	setCmd.Flags().Int32("version", -1, "Expected version of the node, -1 matches any version")
	deleteCmd.Flags().Int32("version", -1, "Expected version of the node, -1 matches any version")
	deleteCmd.Flags().Bool("recursive", false, "Delete the node with all its children")
	lsCmd.Flags().String("filter", "all", "Which children to list (all, persistent, ephemeral)")
}

// parseFilter reads the filter flag of the ls command
func parseFilter(cmd *cobra.Command) (fsm.ListFilter, error) {
	filter, _ := cmd.Flags().GetString("filter")
	switch filter {
	case "all":
		return fsm.ListAll, nil
	case "persistent":
		return fsm.ListPersistentOnly, nil
	case "ephemeral":
		return fsm.ListEphemeralOnly, nil
	default:
		return 0, fmt.Errorf("invalid filter %s (expected one of: all, persistent, ephemeral)", filter)
	}
}

// printStat prints the stat of a node in the style of the zookeeper cli
func printStat(stat common.Stat) {
	fmt.Printf("cZxid = 0x%x\n", stat.Czxid)
	fmt.Printf("ctime = %s\n", time.UnixMilli(stat.Ctime).UTC().Format(time.RFC3339))
	fmt.Printf("mZxid = 0x%x\n", stat.Mzxid)
	fmt.Printf("mtime = %s\n", time.UnixMilli(stat.Mtime).UTC().Format(time.RFC3339))
	fmt.Printf("dataVersion = %d\n", stat.Version)
	fmt.Printf("ephemeralOwner = 0x%x\n", uint64(stat.EphemeralOwner))
	fmt.Printf("dataLength = %d\n", stat.DataLength)
	fmt.Printf("numChildren = %d\n", stat.NumChildren)
}
