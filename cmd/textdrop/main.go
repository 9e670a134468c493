package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/TextDrop/internal/config"
	"github.com/dharsanguruparan/TextDrop/internal/database"
	"github.com/dharsanguruparan/TextDrop/internal/intake"
	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/model"
	"github.com/dharsanguruparan/TextDrop/internal/pipeline"
	"github.com/dharsanguruparan/TextDrop/internal/queue"
	"github.com/dharsanguruparan/TextDrop/internal/repository"
)

var (
	composeFile string
	noColor     bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "textdrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "textdrop",
		Short: "TextDrop document text extraction CLI",
		Long: `TextDrop CLI uploads documents for text extraction, inspects the job ledger,
and runs the pipeline binaries or the local docker-compose stack.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	cmd.AddCommand(
		newUploadCmd(),
		newDispatchCmd(),
		newJobsCmd(),
		newUpCmd(),
		newDownCmd(),
		newLogsCmd(),
		newRunCmd(),
	)
	return cmd
}

func newUploadCmd() *cobra.Command {
	var email, apiURL string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a JPEG, PNG or PDF for text extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				apiURL = cfg.APIGatewayURL
			}
			out := ui{out: cmd.OutOrStdout()}
			client := intake.New(apiURL, nil, nil)
			res := client.SubmitFile(cmd.Context(), args[0], email)
			switch res.Status {
			case intake.Uploaded:
				out.Success("%s", res.Message)
				return nil
			case intake.Unverified:
				out.Warning("%s", res.Message)
				return nil
			default:
				out.Error("%s", res.Message)
				return res.Err
			}
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Address the download links are sent to")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Address-issuance endpoint (defaults to API_GATEWAY_URL)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <bucket> <key>",
		Short: "Enqueue a storage write event as if the bucket had sent it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client := asynq.NewClient(queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
			defer client.Close()
			ev := model.ObjectEvent{Bucket: args[0], Key: args[1]}
			if err := queue.EnqueueObjectCreated(cmd.Context(), client, ev); err != nil {
				return err
			}
			ui{out: cmd.OutOrStdout()}.Success("queued %s/%s", ev.Bucket, ev.Key)
			return nil
		},
	}
}

func newJobsCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List extraction jobs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			ctx := cmd.Context()
			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			jobs, err := repository.NewJobRepository(pool).List(ctx, repository.JobState(status), limit)
			if err != nil {
				return err
			}
			printJobs(cmd, jobs)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (started, polling, completed, failed, dead_lettered)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")
	return cmd
}

func printJobs(cmd *cobra.Command, jobs []repository.JobRecord) {
	if len(jobs) == 0 {
		ui{out: cmd.OutOrStdout()}.Info("no jobs")
		return
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tATTEMPTS\tOBJECT\tUPDATED\tMESSAGE")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s/%s\t%s\t%s\n", j.JobID, j.State, j.Attempts, j.Bucket, j.RawKey, j.UpdatedAt.Format("2006-01-02 15:04:05"), j.Message)
	}
	_ = tw.Flush()
}

func newUpCmd() *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start the local MinIO, Redis and Postgres stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "up"}
			if detach {
				composeArgs = append(composeArgs, "-d")
			}
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")
	return cmd
}

func newDownCmd() *cobra.Command {
	var removeVolumes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the local stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "down"}
			if removeVolumes {
				composeArgs = append(composeArgs, "-v")
			}
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "Remove stack volumes")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Tail logs from the local stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "logs"}
			if follow {
				composeArgs = append(composeArgs, "-f")
			}
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run pipeline binaries or a one-off extraction",
	}
	cmd.AddCommand(
		newServiceRunner("server", "./cmd/server"),
		newServiceRunner("worker", "./cmd/worker"),
		newExtractCmd(),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"run", path}
			goArgs = append(goArgs, args...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
}

// newExtractCmd runs the orchestrator synchronously for one raw object,
// without the queue.
func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <bucket> <key>",
		Short: "Extract text from one incoming/ object and wait for the artifacts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := logging.New(logging.Options{Level: cfg.LogLevel, Format: "console", Output: cmd.ErrOrStderr()})
			p, err := pipeline.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer p.Close()

			out := ui{out: cmd.OutOrStdout()}
			res := p.Orchestrator.Run(ctx, model.ObjectEvent{Bucket: args[0], Key: args[1]})
			if res.Failed() {
				out.Error("%s", res.Message)
				return res.Err
			}
			out.Success("%s", res.Message)
			return nil
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
