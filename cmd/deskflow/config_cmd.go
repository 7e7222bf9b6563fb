package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/deskflow/internal/config"
	"github.com/hyperengineering/deskflow/internal/store"
	"github.com/hyperengineering/deskflow/internal/types"
	"github.com/hyperengineering/deskflow/internal/validation"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect deskflow configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration and, when a database exists, the routing setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")

		if _, err := os.Stat(cfg.Database.Path); err != nil {
			return nil
		}
		defects, err := checkRoutingSetup(cmd, cfg.Database.Path)
		if err != nil {
			return err
		}
		if defects > 0 {
			return fmt.Errorf("routing setup has %d defect(s)", defects)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "routing setup valid")
		return nil
	},
}

// checkRoutingSetup runs the setup-time invariants against the live store:
// rule-set coverage and tier threshold exhaustiveness per scope.
func checkRoutingSetup(cmd *cobra.Command, dbPath string) (int, error) {
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer s.Close()
	ctx := cmd.Context()

	defects := 0
	report := func(scope string, errs []validation.ValidationError) {
		for _, e := range errs {
			defects++
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s: %s\n", scope, e.Field, e.Message)
		}
	}

	rules, err := s.ListRules(ctx)
	if err != nil {
		return 0, err
	}
	report("rules", validation.ValidateRuleSet(rules))

	thresholds, err := s.ListThresholds(ctx)
	if err != nil {
		return 0, err
	}
	byScope := map[string][]types.TierThreshold{}
	for _, th := range thresholds {
		byScope[th.PublicationID] = append(byScope[th.PublicationID], th)
	}
	for scope, ths := range byScope {
		label := "thresholds"
		if scope != "" {
			label = "thresholds[" + scope + "]"
		}
		report(label, validation.ValidateThresholds(ths))
	}
	return defects, nil
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// Secrets stay env-only and are excluded from YAML marshaling.
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		cmd.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
