// Package cmd implements the dfs-fuse command-line surface: flag parsing,
// environment-variable binding, and the mount subcommand that wires a
// Client to a dfsfs.Server and hands the result to the FUSE bridge.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "dfs-fuse",
	Short: "Mount a remote dfs-fuse server as a local FUSE filesystem",
	Long: `dfs-fuse connects to a remote server speaking the dfs wire protocol
and exposes its files and directories as a local FUSE mount, caching
metadata locally and serializing every call over one TCP connection.`,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("host", "127.0.0.1", "remote server host")
	flags.Int("port", 4096, "remote server port")
	flags.StringP("key", "k", "", "pre-shared key used to authenticate (env DFSFUSE_KEY)")
	flags.Uint32P("uid", "u", uint32(os.Getuid()), "uid reported for every inode")
	flags.Uint32P("gid", "g", uint32(os.Getgid()), "gid reported for every inode")
	flags.BoolP("debug", "d", false, "enable debug-level logging")
	flags.Bool("nocache", false, "disable the local directory-listing cache")

	_ = viper.BindPFlags(flags)
	_ = viper.BindEnv("key", "DFSFUSE_KEY")

	rootCmd.AddCommand(mountCmd)
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
