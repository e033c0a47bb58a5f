package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goatkit/moddata/internal/plugin"
	"github.com/goatkit/moddata/internal/saves"
)

var allSlots = []saves.Slot{saves.SlotGlobal, saves.Slot1, saves.Slot2, saves.Slot3}

func (a *app) verifyCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "verify [slot...]",
		Short: "Check save files for corruption",
		Long: "Check save files for corruption. Without arguments every slot is checked.\n" +
			"With --repair a broken file is deleted and regenerated for the installed plugins.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			slots := allSlots
			if len(args) > 0 {
				slots = slots[:0:0]
				for _, arg := range args {
					slot, err := saves.ParseSlot(arg)
					if err != nil {
						return err
					}
					slots = append(slots, slot)
				}
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, slot := range slots {
				path := filepath.Join(cfg.SaveDir, slot.FileName())
				data, err := os.ReadFile(path)
				if errors.Is(err, fs.ErrNotExist) {
					fmt.Fprintf(out, "%s: missing\n", slot)
					continue
				}
				if err != nil {
					return err
				}

				verr := saves.Validate(data)
				if verr == nil {
					fmt.Fprintf(out, "%s: ok (%d plugins)\n", slot, len(saves.Plugins(data)))
					continue
				}
				fmt.Fprintf(out, "%s: %v\n", slot, verr)
				if !repair {
					failed++
					continue
				}

				if err := os.Remove(path); err != nil {
					return fmt.Errorf("remove %s: %w", path, err)
				}
				f, err := a.framework(cmd.Context(), cmd, slot)
				if err != nil {
					return err
				}
				f.Saves().Deserialize(scopeOf(slot))
				_ = f.Close()
				fmt.Fprintf(out, "%s: regenerated\n", slot)
			}
			if failed > 0 {
				return fmt.Errorf("%d save file(s) failed verification", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "delete and regenerate broken files")
	return cmd
}

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <slot>",
		Short: "Delete the modded save file of a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, slot, path, err := a.path(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to reset\n", slot)
				return nil
			}
			m := saves.NewManager(cfg.SaveDir, plugin.NewRegistry(nil))
			m.Reset(slot)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("could not remove %s", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: reset\n", slot)
			return nil
		},
	}
}
