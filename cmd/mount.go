package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/DanSnow/dfs-fuse/internal/client"
	"github.com/DanSnow/dfs-fuse/internal/dfsfs"
	"github.com/DanSnow/dfs-fuse/internal/logger"
	"github.com/jacobsa/fuse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount the remote filesystem at the given local directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMount,
}

func runMount(cmd *cobra.Command, args []string) error {
	mountPoint := args[0]

	severity := logger.INFO
	if viper.GetBool("debug") {
		severity = logger.DEBUG
	}
	if err := logger.InitLogFile(logger.Config{Severity: severity, Format: "text"}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	key := viper.GetString("key")
	if key == "" {
		return fmt.Errorf("a pre-shared key is required: pass --key or set DFSFUSE_KEY")
	}

	cl := client.New(viper.GetString("host"), viper.GetInt("port"), key, !viper.GetBool("nocache"))
	logger.Infof("connecting to %s:%d", viper.GetString("host"), viper.GetInt("port"))
	if err := cl.Init(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	srv := dfsfs.New(cl, dfsfs.Config{
		Uid: viper.GetUint32("uid"),
		Gid: viper.GetUint32("gid"),
	})

	// dfsfs.NewFileSystemServer wraps srv in the ctx+Op adapter that
	// fuse.Mount actually dispatches through, so Rename/StatFS/Destroy/
	// GetXattr/ListXattr reach srv instead of sitting behind an interface
	// fuse.Mount never calls. See the dfsfs package doc and DESIGN.md's
	// Mount-signature note for why the retrieved dependency snapshot's own
	// mounted_file_system.go/connection.go/ops.go disagree with each other
	// about which op generation Mount actually serves.
	mfs, err := fuse.Mount(mountPoint, dfsfs.NewFileSystemServer(srv), &fuse.MountConfig{})
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	logger.Infof("mounted at %s", mountPoint)

	registerSIGINTHandler(mountPoint)

	return mfs.Join(context.Background())
}

// registerSIGINTHandler unmounts mountPoint in response to Ctrl-C, retrying
// until fuse.Unmount succeeds since the kernel may report the mount busy on
// the first attempt.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Infof("received SIGINT, attempting to unmount %s", mountPoint)
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("unmount failed: %v", err)
				continue
			}
			logger.Infof("unmounted %s", mountPoint)
			return
		}
	}()
}
