package commands

import (
	"github.com/spf13/cobra"
)

// configFile is bound to --config on RootCmd and read by RunCmd.
var configFile string

// RootCmd is chancored's top-level command, grounded on the teacher's
// cmd/tendermint root (a bare cobra.Command carrying only a Use/Short
// pair, with real work delegated to subcommands).
var RootCmd = &cobra.Command{
	Use:   "chancored",
	Short: "Channel-oriented message-passing core daemon",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a chancore toml config file")
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(RunCmd)
}
