// Command linknet is the LinkNet peer daemon: it listens for TCP
// sessions, beacons and discovers other instances on the LAN, and (when
// asked) sends a file to a specific address.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	flagPort        int
	flagAutoConnect bool
	flagDownloadDir string
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "linknet",
	Short: "LinkNet peer-to-peer LAN networking daemon",
	Long: `linknet discovers other LinkNet instances on the local network,
accepts and maintains TCP sessions with them, and exchanges chat messages
and files over that connection.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "TCP port to listen on (0 picks the default)")
	rootCmd.PersistentFlags().BoolVar(&flagAutoConnect, "auto-connect", false, "automatically dial every peer discovery finds")
	rootCmd.PersistentFlags().StringVar(&flagDownloadDir, "download-dir", "", "directory incoming files are written to")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(sendCmd)
}
