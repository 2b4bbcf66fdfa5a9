package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tradex-ops/tradexd/pkg/config"
	"github.com/tradex-ops/tradexd/pkg/doctor"
	"github.com/tradex-ops/tradexd/pkg/export"
	"github.com/tradex-ops/tradexd/pkg/logging"
)

const defaultConfigPath = "/etc/tradex/tradexd.yaml"

func newDoctorCommand() *cobra.Command {
	var configPath string
	var expectRunning bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics for the configured programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath, logging.NewNopLogger())
			if err != nil {
				return err
			}

			report := doctor.Run(cfg, expectRunning, logging.NewNopLogger())
			for _, result := range report.Results {
				target := result.Check
				if result.Program != "" {
					target = fmt.Sprintf("%s/%s", result.Program, result.Check)
				}
				fmt.Printf("%-7s %-30s %s\n", result.Severity, target, result.Message)
			}

			if report.HasErrors() {
				return fmt.Errorf("diagnostics found problems")
			}
			fmt.Println("all checks passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to the tradexd configuration file")
	cmd.Flags().BoolVar(&expectRunning, "running", false,
		"Expect the deployment to be up (program ports must accept connections)")
	return cmd
}

func newExportCommand() *cobra.Command {
	var configPath string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render native init files from the tradexd configuration",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the tradexd configuration file")
	cmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "Write files here instead of stdout")

	systemdCmd := &cobra.Command{
		Use:   "systemd",
		Short: "Render one systemd unit per program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath, logging.NewNopLogger())
			if err != nil {
				return err
			}

			for i := range cfg.Programs {
				p := &cfg.Programs[i]
				unit, err := export.SystemdUnit(p)
				if err != nil {
					return err
				}
				if err := writeExport(outputDir, export.UnitFileName(p.Name), unit); err != nil {
					return err
				}
			}
			return nil
		},
	}

	supervisorCmd := &cobra.Command{
		Use:   "supervisor",
		Short: "Render a Supervisor configuration covering all programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath, logging.NewNopLogger())
			if err != nil {
				return err
			}

			conf, err := export.SupervisorConf(cfg)
			if err != nil {
				return err
			}
			return writeExport(outputDir, "tradex.conf", conf)
		},
	}

	cmd.AddCommand(systemdCmd, supervisorCmd)
	return cmd
}

func writeExport(outputDir, fileName, content string) error {
	if outputDir == "" {
		fmt.Printf("# %s\n%s\n", fileName, content)
		return nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(outputDir, fileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
