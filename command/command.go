package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/serverlesstf/greeter"
	"github.com/serverlesstf/greeter/internal/config"
	"github.com/serverlesstf/greeter/internal/logger"
	"github.com/spf13/cobra"
)

type CommandOptions func(*cobra.Command) error

func WithOutput(w io.Writer) CommandOptions {
	return func(cmd *cobra.Command) error {
		cmd.SetOut(w)
		cmd.SetErr(w)
		return nil
	}
}

func WithErrOutput(w io.Writer) CommandOptions {
	return func(cmd *cobra.Command) error {
		cmd.SetErr(w)
		return nil
	}
}

// NewDeployer builds the Deployer used by deploy, delete and invoke.
var NewDeployer = func(ctx context.Context, cfg config.Config) (*greeter.Deployer, error) {
	return greeter.NewDeployer(ctx, cfg.ArtifactEndpoint, cfg.ArtifactBucket, logger.New("greeter.deploy"))
}

func Main(args []string, opts ...CommandOptions) error {
	// .env is optional
	_ = godotenv.Load()

	var rootCmd = &cobra.Command{
		Use:   "greeterctl",
		Short: "Build, deploy and invoke the greeter Lambda function.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("log-format")
			level, _ := cmd.Flags().GetString("log-level")
			logger.SetOutput(cmd.ErrOrStderr())
			return logger.Configure(format, level)
		},
	}
	rootCmd.PersistentFlags().String("log-format", "Text", "Format of operational logs and local handler logs: JSON or Text.")
	rootCmd.PersistentFlags().String("log-level", "INFO", "Level of operational logs.")

	commands := []*cobra.Command{
		DeployCommand(),
		DeleteCommand(),
		InvokeCommand(),
		LocalCommand(),
		PackageCommand(),
	}
	for _, opt := range opts {
		err := opt(rootCmd)
		if err != nil {
			return err
		}
	}
	rootCmd.AddCommand(commands...)
	if len(args) == 0 {
		rootCmd.Print(rootCmd.UsageString())
		return fmt.Errorf("no command provided")
	}
	rootCmd.SetArgs(args)
	_, _, err := rootCmd.Find(args)
	if err != nil {
		rootCmd.Print(rootCmd.UsageString())
		return err
	}
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true, Run: func(cmd *cobra.Command, args []string) {}})
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	return rootCmd.Execute()
}

func DeployCommand() *cobra.Command {
	var deployCmd = &cobra.Command{
		Use:          "deploy functionName sourceCodePath",
		Short:        "Package the handler and create or update it as a lambda function.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		Example:      `greeterctl deploy greeter ./cmd/greeter`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			managedPolicies, _ := cmd.Flags().GetString("managed-policies")
			inlinePolicy, _ := cmd.Flags().GetString("inline-policy")
			resourcePolicy, _ := cmd.Flags().GetString("resource-policy")
			arch, _ := cmd.Flags().GetString("architecture")
			if arch == "" {
				arch = cfg.Architecture
			}
			if bucket, _ := cmd.Flags().GetString("artifact-bucket"); bucket != "" {
				cfg.ArtifactBucket = bucket
			}
			logFormat, _ := cmd.Flags().GetString("function-log-format")

			f, err := greeter.NewFunction(args[0], args[1],
				greeter.WithExecutionRoleName(cfg.RoleName),
				greeter.WithManagedPolicies(managedPolicies),
				greeter.WithInlinePolicy(inlinePolicy),
				greeter.WithResourcePolicy(resourcePolicy),
				greeter.WithArchitecture(arch),
				greeter.WithLogFormat(logFormat),
			)
			if err != nil {
				return err
			}
			d, err := NewDeployer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			version, err := d.Deploy(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deployed %s version %s\n", f.Name, version)
			return nil
		},
	}
	deployCmd.Flags().String("managed-policies", "", "Managed policies to attach to the execution role.")
	deployCmd.Flags().String("inline-policy", "", "Inline policy to attach to the execution role.")
	deployCmd.Flags().String("resource-policy", "", "Resource policy granting invoke permission on the function.")
	deployCmd.Flags().String("architecture", "", "Target architecture: arm64 or amd64.")
	deployCmd.Flags().String("artifact-bucket", "", "S3 bucket to upload the package to instead of sending it inline.")
	deployCmd.Flags().String("function-log-format", "Text", "Log format Lambda configures for the function: JSON or Text.")
	return deployCmd
}

func DeleteCommand() *cobra.Command {
	var deleteCmd = &cobra.Command{
		Use:          "delete functionName",
		Short:        "Delete a lambda function.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		Example:      `greeterctl delete greeter`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			d, err := NewDeployer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return d.Delete(cmd.Context(), args[0])
		},
	}
	return deleteCmd
}

func InvokeCommand() *cobra.Command {
	var invokeCmd = &cobra.Command{
		Use:          "invoke functionName [payload]",
		Short:        "Invoke a deployed lambda function and print its response and log tail.",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		Example:      `greeterctl invoke greeter '{"key":"value"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			d, err := NewDeployer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			result, err := d.Invoke(cmd.Context(), args[0], []byte(payloadArg(args, 1)))
			if result.Logs != "" {
				fmt.Fprint(cmd.ErrOrStderr(), result.Logs)
			}
			if result.Payload != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(result.Payload))
			}
			return err
		},
	}
	return invokeCmd
}

// LocalCommand runs the handler in-process through the same JSON decoding
// and encoding the Lambda runtime applies.
func LocalCommand() *cobra.Command {
	var localCmd = &cobra.Command{
		Use:          "local [payload]",
		Short:        "Invoke the handler locally.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		Example:      `greeterctl local '{"key":"value"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logFormat, _ := cmd.Flags().GetString("log-format")
			format := greeter.ParseLogFormat(logFormat)
			h := greeter.NewHandler(greeter.WithFallbackLogger(func(ctx context.Context) greeter.Logger {
				return greeter.LoggerForInvocation(ctx, cmd.ErrOrStderr(), format)
			}))
			ctx := lambdacontext.NewContext(cmd.Context(), &lambdacontext.LambdaContext{
				AwsRequestID: uuid.NewString(),
			})
			out, err := lambda.NewHandler(h.Handle).Invoke(ctx, []byte(payloadArg(args, 0)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(out)))
			return nil
		},
	}
	return localCmd
}

func PackageCommand() *cobra.Command {
	var packageCmd = &cobra.Command{
		Use:          "package sourceCodePath",
		Short:        "Build the handler into a deployment package and print its code hash.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		Example:      `greeterctl package ./cmd/greeter --output greeter.zip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			arch, _ := cmd.Flags().GetString("architecture")
			if err := greeter.Validate(args[0]); err != nil {
				return err
			}
			pkg, err := greeter.Package(args[0], arch)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, pkg, 0644); err != nil {
				return fmt.Errorf("failed to write package: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), greeter.SourceCodeHash(pkg))
			return nil
		},
	}
	packageCmd.Flags().String("output", "bootstrap.zip", "Path of the zip file to write.")
	packageCmd.Flags().String("architecture", greeter.DefaultArchitecture, "Target architecture: arm64 or amd64.")
	return packageCmd
}

func payloadArg(args []string, i int) string {
	if len(args) > i && args[i] != "" {
		return args[i]
	}
	return "{}"
}
