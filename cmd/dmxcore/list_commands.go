package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dmxcore/internal/dmx"
)

func newFixturesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fixtures",
		Short: "List fixture definitions in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.offlineService()
			if err != nil {
				return err
			}
			defs := s.Definitions()
			if len(defs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No definitions under %s\n", s.Catalog.Root())
				return nil
			}
			rows := make([][]string, 0, len(defs))
			for _, d := range defs {
				rows = append(rows, []string{d.Manufacturer, d.Name, d.Type, strconv.Itoa(d.TotalChannels), d.Source})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Manufacturer", "Name", "Type", "Channels", "Source"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newScenesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes",
		Short: "List stored scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.offlineService()
			if err != nil {
				return err
			}
			scenes := s.ListScenes()
			if len(scenes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Scenes: none")
				return nil
			}
			rows := make([][]string, 0, len(scenes))
			for _, sc := range scenes {
				rows = append(rows, []string{sc.Name, sc.ID, sc.CreatedAt.Local().Format("2006-01-02 15:04"), strconv.Itoa(len(sc.States))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "ID", "Created", "Fixtures"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newChasersCommand(ctx *commandContext) *cobra.Command {
	chaserCmd := &cobra.Command{
		Use:   "chasers",
		Short: "List stored chasers",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.offlineService()
			if err != nil {
				return err
			}
			chasers := s.ListChasers()
			if len(chasers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Chasers: none")
				return nil
			}
			rows := make([][]string, 0, len(chasers))
			for _, c := range chasers {
				rows = append(rows, []string{c.Name, c.ID, c.Step.String(), strconv.Itoa(len(c.SceneIDs))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "ID", "Step", "Scenes"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	chaserCmd.AddCommand(newChaserCreateCommand(ctx))
	return chaserCmd
}

func newChaserCreateCommand(ctx *commandContext) *cobra.Command {
	var step string
	cmd := &cobra.Command{
		Use:   "create <name> <scene>...",
		Short: "Create a chaser over stored scenes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseStep(step)
			if err != nil {
				return err
			}
			s, err := ctx.offlineService()
			if err != nil {
				return err
			}
			info, err := s.CreateChaser(args[0], args[1:], d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created chaser %s (%s)\n", info.Name, info.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&step, "step", "1s", "Time each scene is held")
	return cmd
}

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := dmx.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Serial ports: none")
				return nil
			}
			rows := make([][]string, 0, len(ports))
			for _, p := range ports {
				usb := ""
				if p.IsUSB {
					usb = strings.ToLower(p.VID + ":" + p.PID)
				}
				rows = append(rows, []string{p.Name, usb, p.SerialNumber, p.Product})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Port", "USB", "Serial", "Product"},
				rows,
				nil,
			))
			return nil
		},
	}
}
