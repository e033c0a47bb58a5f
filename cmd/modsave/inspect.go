package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/goatkit/moddata/internal/saves"
)

func readSave(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no save file at %s", path)
	}
	return data, err
}

func (a *app) inspectCmd() *cobra.Command {
	var pluginName string
	var raw bool

	cmd := &cobra.Command{
		Use:   "inspect <slot>",
		Short: "List the entries stored in a save file",
		Long:  "List the entries stored in a save file. slot is global, 1, 2 or 3.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, path, err := a.path(args[0])
			if err != nil {
				return err
			}
			data, err := readSave(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				_, err := out.Write(pretty.Pretty(data))
				return err
			}

			file, err := saves.Decode(data)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(file))
			for name := range file {
				if pluginName == "" || name == pluginName {
					names = append(names, name)
				}
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLUGIN\tPREFIX\tTYPE\tVALUE")
			for _, name := range names {
				for _, item := range file[name] {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, item.Prefix(), item.Type, pretty.Ugly(item.Value))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&pluginName, "plugin", "", "only show this plugin")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the whole file as indented json")
	return cmd
}
