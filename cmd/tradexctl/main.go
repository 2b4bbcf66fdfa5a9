// tradexctl is the operator CLI for tradexd, covering the daily
// supervisorctl-style workflow: status, start/stop/restart, reload,
// events, log tails, environment diagnostics and init-file export.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/control"
)

var controlAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:           "tradexctl",
		Short:         "Control CLI for the tradexd supervision daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&controlAddr, "addr", config.DefaultControlAddr,
		"Address of the tradexd control server")

	rootCmd.AddCommand(
		newStatusCommand(),
		newStartCommand(),
		newStopCommand(),
		newRestartCommand(),
		newReloadCommand(),
		newEventsCommand(),
		newTailCommand(),
		newDoctorCommand(),
		newExportCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tradexctl: %v\n", err)
		os.Exit(1)
	}
}

func client() *control.Client {
	return control.NewClient(controlAddr)
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [program]",
		Short: "Show the state of all programs or one program",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				status, err := client().Status(ctx, args[0])
				if err != nil {
					return err
				}
				printStatuses([]control.ProgramStatus{status})
				return nil
			}

			statuses, err := client().StatusAll(ctx)
			if err != nil {
				return err
			}
			printStatuses(statuses)
			return nil
		},
	}
}

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start <program>",
		Short: "Start a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client().Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatuses([]control.ProgramStatus{status})
			return nil
		},
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <program>",
		Short: "Stop a program (it will not auto-restart)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client().Stop(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatuses([]control.ProgramStatus{status})
			return nil
		},
	}
}

func newRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <program>",
		Short: "Restart a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client().Restart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatuses([]control.ProgramStatus{status})
			return nil
		},
	}
}

func newReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the daemon configuration and apply program changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client().Reload(cmd.Context())
			if err != nil {
				return err
			}

			if len(result.Added) == 0 && len(result.Removed) == 0 && len(result.Changed) == 0 {
				fmt.Println("configuration unchanged")
			}
			for _, name := range result.Added {
				fmt.Printf("added:   %s\n", name)
			}
			for _, name := range result.Changed {
				fmt.Printf("changed: %s\n", name)
			}
			for _, name := range result.Removed {
				fmt.Printf("removed: %s\n", name)
			}
			if result.SupervisorChanged {
				fmt.Println("note: supervisor-wide options changed; restart tradexd to apply them")
			}
			return nil
		},
	}
}

func newEventsCommand() *cobra.Command {
	var limit int
	var program string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent program lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := client().Events(cmd.Context(), limit, program)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "TIME\tPROGRAM\tEVENT\tMESSAGE")
			for _, event := range events {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
					event.Time.Format(time.RFC3339), event.Program, event.Type, event.Message)
			}
			return writer.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")
	cmd.Flags().StringVar(&program, "program", "", "Filter by program name")
	return cmd
}

func newTailCommand() *cobra.Command {
	var stream string
	var lines int

	cmd := &cobra.Command{
		Use:   "tail <program>",
		Short: "Show the last lines of a program's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client().TailLog(cmd.Context(), args[0], stream, lines)
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stream, "stream", "stdout", "Log stream (stdout or stderr)")
	cmd.Flags().IntVar(&lines, "lines", 50, "Number of lines")
	return cmd
}

func printStatuses(statuses []control.ProgramStatus) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PROGRAM\tSTATE\tPID\tUPTIME\tMESSAGE")
	for _, status := range statuses {
		pid := ""
		if status.PID > 0 {
			pid = fmt.Sprintf("%d", status.PID)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			status.Name, status.State, pid, status.Uptime, status.Message)
	}
	writer.Flush()
}
