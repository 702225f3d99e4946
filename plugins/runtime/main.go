package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cube2222/octoudf/plugins/plugin"
	"github.com/cube2222/octoudf/serialization"
)

var rootCmd = &cobra.Command{
	Use:   "octoudf-runtime <socket>",
	Short: "Serves a built-in scalar function over gRPC.",
	Long: `Serves a built-in scalar function over gRPC.

Available functions: ` + strings.Join(plugin.BuiltinNames(), ", ") + `.`,
	Args:          cobra.ExactArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := zap.NewProduction()
		if err != nil {
			return errors.Wrap(err, "couldn't create logger")
		}
		defer logger.Sync()

		format, err := serialization.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		fn, err := plugin.Builtin(functionFlag, format)
		if err != nil {
			return err
		}

		network, address := "unix", args[0]
		if tcpFlag {
			network = "tcp"
		}
		lis, err := net.Listen(network, address)
		if err != nil {
			return errors.Wrapf(err, "couldn't listen on %s", address)
		}
		defer lis.Close()

		return plugin.Serve(ctx, lis, plugin.Info{Function: functionFlag, Format: format}, fn, logger)
	},
}

var (
	functionFlag string
	formatFlag   string
	tcpFlag      bool
)

func main() {
	rootCmd.Flags().StringVar(&functionFlag, "function", "identity", "Built-in function to serve.")
	rootCmd.Flags().StringVar(&formatFlag, "format", string(serialization.FormatRowBinary), "Wire format of rows: row-binary or arrow.")
	rootCmd.Flags().BoolVar(&tcpFlag, "tcp", false, "Listen on a TCP address instead of a Unix socket.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
