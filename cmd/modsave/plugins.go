package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goatkit/moddata/internal/saves"
)

func (a *app) pluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List manifest plugins and whether the version gate lets them load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.framework(cmd.Context(), cmd, saves.Slot1)
			if err != nil {
				return err
			}
			defer f.Close()

			reg := f.Registry()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tREQUIRES\tSTATE")
			for _, name := range reg.Names() {
				desc, _ := reg.Describe(name)
				required := desc.RequiredFrameworkVersion
				if required == "" {
					required = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, desc.Version, required, reg.State(name))
			}
			return w.Flush()
		},
	}
}
