package main

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/manifest"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest to the controller store",
	Long: `Apply a Burrow manifest directly to the controller's store.

The controller must not be running: the bolt store is opened exclusively.
Objects that already exist are skipped. Use --dry-run to only check that
the manifest parses.

Examples:
  # Seed a new cluster
  burrow apply -f cluster.yaml

  # Check a manifest
  burrow apply -f cluster.yaml --dry-run`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	applyCmd.Flags().Bool("dry-run", false, "Parse the manifest without applying it")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	filename, _ := cmd.Flags().GetString("file")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	m, err := manifest.Load(filename)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("✓ %s: %d nodes, %d storage pools, %d resource definitions, %d resources\n",
			filename, len(m.Nodes), len(m.StorPools), len(m.ResourceDefinitions), len(m.Resources))
		return nil
	}

	if err := cfg.ValidateController(); err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	ctrl, err := newController(cfg, store, nil)
	if err != nil {
		return err
	}

	sum, applyErr := manifest.Apply(ctrl, ctrl.SystemContext(), m)
	for _, e := range sum.Errors {
		fmt.Printf("✗ %s\n", e.Message)
		if e.Cause != "" {
			fmt.Printf("    %s\n", e.Cause)
		}
	}
	fmt.Printf("Created %d, skipped %d (already exist), failed %d\n", sum.Created, sum.Skipped, sum.Failed)
	return applyErr
}
