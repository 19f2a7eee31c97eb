package command

import (
	"fmt"
	"os"

	"github.com/relaysix/sshx/internal/hostrunner"
	"github.com/relaysix/sshx/internal/idgen"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	hostLogLevel     string
	hostServer       string
	hostInsecure     bool
	hostName         string
	hostWritePass    string
	hostShellEnvList []string
)

func run(cmd *cobra.Command, args []string) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(hostLogLevel)); err != nil {
		return err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	logger, err := config.Build()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	passphrase := idgen.Passphrase()

	runner := hostrunner.New(hostrunner.Config{
		ServerAddress:   hostServer,
		Insecure:        hostInsecure,
		Passphrase:      passphrase,
		WritePassphrase: hostWritePass,
		Name:            hostName,
		ShellEnv:        hostShellEnvList,
		OnOpened: func(url string) {
			fmt.Fprintf(cmd.OutOrStdout(), "session open: %s#%s\n", url, passphrase)
			if hostWritePass != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "write password: %s\n", hostWritePass)
			}
		},
	}, logger)

	return runner.Run(cmd.Context())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "start sharing the current terminal",
		RunE:  run,
	}

	cmd.PersistentFlags().StringVar(&hostLogLevel, "log-level", "warn",
		"logging level (debug, info, warn, error)")
	server := os.Getenv("SSHX_SERVER")
	if server == "" {
		server = "sshx.example.com:443"
	}
	cmd.PersistentFlags().StringVar(&hostServer, "server", server,
		"address of the session coordinator (default from $SSHX_SERVER)")
	cmd.PersistentFlags().BoolVar(&hostInsecure, "insecure", false,
		"dial the coordinator without transport security (local testing only)")
	cmd.PersistentFlags().StringVar(&hostName, "name", "",
		"session name (default: coordinator-assigned)")
	cmd.PersistentFlags().StringVar(&hostWritePass, "write-password", "",
		"if set, viewers must supply this password to gain write access; otherwise every authenticated viewer can write")
	cmd.PersistentFlags().StringSliceVar(&hostShellEnvList, "env", nil,
		"extra KEY=VALUE environment variables passed to spawned shells")

	return cmd
}
