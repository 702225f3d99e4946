package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cube2222/octoudf/config"
	"github.com/cube2222/octoudf/datasources/json"
	"github.com/cube2222/octoudf/execution"
	"github.com/cube2222/octoudf/execution/nodes"
	"github.com/cube2222/octoudf/execution/udf"
	"github.com/cube2222/octoudf/execution/udf/passthrough"
	"github.com/cube2222/octoudf/graph"
	"github.com/cube2222/octoudf/logs"
	"github.com/cube2222/octoudf/outputs/formats"
	"github.com/cube2222/octoudf/outputs/stream"
	"github.com/cube2222/octoudf/plugins/executor"
	"github.com/cube2222/octoudf/serialization"
)

var (
	configPath string
	logLevel   string
	logFile    string
	output     string
	cpuProfile string
	probes     int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "octoudf",
	Short:         "Runs scalar functions over changelog streams.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var runCmd = &cobra.Command{
	Use:   "run <input>",
	Args:  cobra.ExactArgs(1),
	Short: "Applies the configured function to every record of a newline delimited json file.",
	Example: `octoudf run people.json
cat people.json | octoudf run - --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cpuProfile != "" {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(cpuProfile), profile.NoShutdownHook).Stop()
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logs.CloseLogger()
		defer logger.Sync()

		operatorConfig, err := cfg.OperatorConfig()
		if err != nil {
			return err
		}
		factory, err := runnerFactory(cfg.Runner.Type, logger)
		if err != nil {
			return err
		}
		operator, err := udf.NewScalarFunctionOperator(operatorConfig, factory)
		if err != nil {
			return err
		}

		formatter, err := formats.NewFormatter(output, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		source := json.NewDatasource(args[0], operatorConfig.InputSchema)
		sink := stream.NewOutputPrinter(
			nodes.NewScalarFunction(source, operator),
			operatorConfig.OutputSchema,
			formatter,
		)
		return sink.Run(execution.NewExecutionContext(cmd.Context(), logger))
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <input>",
	Args:  cobra.ExactArgs(1),
	Short: "Prints the dataflow of the job as a graphviz graph.",
	Example: `octoudf describe people.json | dot -Tpng > job.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Read(configPath)
		if err != nil {
			return err
		}
		operatorConfig, err := cfg.OperatorConfig()
		if err != nil {
			return err
		}
		factory, err := runnerFactory(cfg.Runner.Type, nil)
		if err != nil {
			return err
		}
		operator, err := udf.NewScalarFunctionOperator(operatorConfig, factory)
		if err != nil {
			return err
		}

		node := nodes.NewScalarFunction(json.NewDatasource(args[0], operatorConfig.InputSchema), operator).Visualize()
		node.AddField("runner", cfg.Runner.Type)
		g, err := graph.Show(node)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), g.String())
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Args:  cobra.NoArgs,
	Short: "Checks that the configured runner returns results in submission order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logs.CloseLogger()
		defer logger.Sync()

		format, err := serialization.ParseFormat(cfg.UDF.Format)
		if err != nil {
			return err
		}
		factory, err := runnerFactory(cfg.Runner.Type, logger)
		if err != nil {
			return err
		}
		if err := udf.VerifyFIFO(cmd.Context(), factory, format, cfg.Runner.Options, probes); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "runner '%s' returned %d results in order\n", cfg.Runner.Type, probes)
		return nil
	},
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logs.InitializeFileLogger(logFile, logLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runnerFactory(runnerType string, logger *zap.Logger) (udf.RunnerFactory, error) {
	switch runnerType {
	case "grpc":
		return executor.NewFactory(logger), nil
	case "passthrough":
		return passthrough.NewFactory(passthrough.Identity, logger), nil
	default:
		return nil, errors.Errorf("unknown runner type '%s'", runnerType)
	}
}

func Execute(ctx context.Context) {
	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to the job configuration file.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Level of the logs.")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", logs.DefaultPath, "File the logs are written to.")

	runCmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json.")
	runCmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Directory to write a cpu profile to.")
	verifyCmd.Flags().IntVar(&probes, "probes", 1000, "Number of probe rows to submit.")

	rootCmd.AddCommand(runCmd, describeCmd, verifyCmd)
}
