package admin

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dKeeper/cmd/util"
	"github.com/ValentinKolb/dKeeper/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FourLetterWordCmd sends a four letter word to a server and prints the answer
var FourLetterWordCmd = &cobra.Command{
	Use:   "4lw [word]",
	Short: "Send a four letter word to a server",
	Long: `Send a four letter word (e.g. ruok, srvr, mntr, conf) to a dKeeper server and
print its plain text answer. Words that are not in the allow list of the server
are answered with an empty response.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error { return util.BindCommandFlags(cmd) },
	RunE:    run,
}

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	FourLetterWordCmd.Flags().String("endpoint", "localhost:2181", util.WrapString("The address of the dKeeper server"))
	FourLetterWordCmd.Flags().Int("timeout", 10, util.WrapString("The timeout in seconds"))
	FourLetterWordCmd.Flags().Bool("human", false, util.WrapString("Print sizes in human readable form"))
}

func run(_ *cobra.Command, args []string) error {
	word := strings.ToLower(args[0])

	network, err := util.GetNetwork()
	if err != nil {
		return err
	}

	out, err := client.SendFourLetterWord(
		network,
		viper.GetString("endpoint"),
		word,
		time.Duration(viper.GetInt("timeout"))*time.Second,
	)
	if err != nil {
		return err
	}

	if viper.GetBool("human") {
		out = humanizeSizes(out)
	}
	fmt.Print(out)
	return nil
}
