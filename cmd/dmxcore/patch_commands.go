package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newPatchCommand(ctx *commandContext) *cobra.Command {
	patchCmd := &cobra.Command{
		Use:   "patch",
		Short: "Show the patch table",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.offlineService()
			if err != nil {
				return err
			}
			fixtures := s.Fixtures()
			if len(fixtures) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Patch: empty")
				return nil
			}
			rows := make([][]string, 0, len(fixtures))
			for _, f := range fixtures {
				rows = append(rows, []string{
					strconv.Itoa(f.StartAddress),
					strconv.Itoa(f.EndAddress()),
					f.Name,
					f.Definition.Key(),
					f.ID,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Start", "End", "Name", "Definition", "ID"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	patchCmd.AddCommand(newPatchAddCommand(ctx))
	patchCmd.AddCommand(newPatchRemoveCommand(ctx))
	return patchCmd
}

func newPatchAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <definition> <start-address>",
		Short: "Patch a fixture definition at a start address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("start address %q: %w", args[1], err)
			}
			s, err := ctx.offlineService()
			if err != nil {
				return err
			}
			f, err := s.PatchFixture(args[0], start, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Patched %s at %d-%d (%s)\n", f.Name, f.StartAddress, f.EndAddress(), f.ID)
			return s.Stop()
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Instance name, defaults to the definition name")
	return cmd
}

func newPatchRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a patched fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.offlineService()
			if err != nil {
				return err
			}
			if !s.UnpatchFixture(args[0]) {
				return fmt.Errorf("fixture %q is not patched", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return s.Stop()
		},
	}
}

func parseStep(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("step %q: %w", v, err)
	}
	return d, nil
}
