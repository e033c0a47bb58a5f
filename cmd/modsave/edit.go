package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/goatkit/moddata/internal/saves"
)

func (a *app) getCmd() *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "get <slot> <plugin> <prefix>",
		Short: "Print one stored value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, path, err := a.path(args[0])
			if err != nil {
				return err
			}
			data, err := readSave(path)
			if err != nil {
				return err
			}
			v, ok := saves.QueryValue(data, args[1], args[2])
			if !ok {
				return fmt.Errorf("%s has no entry %q", args[1], args[2])
			}

			out := []byte(v.Raw)
			if v.IsObject() || v.IsArray() {
				if compact {
					out = append(pretty.Ugly(out), '\n')
				} else {
					out = pretty.Pretty(out)
				}
			} else {
				out = append(out, '\n')
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print objects and arrays on one line")
	return cmd
}

func (a *app) setCmd() *cobra.Command {
	var asString bool

	cmd := &cobra.Command{
		Use:   "set <slot> <plugin> <prefix> <json>",
		Short: "Replace or add one stored value",
		Long: "Replace or add one stored value. The value must be json unless --string is given.\n" +
			"Do not edit a save while the game has it loaded; the game overwrites it on its next save.",
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, path, err := a.path(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			value := []byte(args[3])
			if asString {
				if value, err = json.Marshal(args[3]); err != nil {
					return err
				}
			}
			out, err := saves.SetRaw(data, args[1], args[2], value)
			if err != nil {
				return err
			}
			if err := saves.Validate(out); err != nil {
				return fmt.Errorf("refusing to write: %w", err)
			}
			if err := saves.WriteFile(path, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s/%s in %s\n", args[1], args[2], path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asString, "string", false, "store the value as a json string")
	return cmd
}
