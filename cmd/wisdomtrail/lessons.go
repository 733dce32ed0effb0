package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/tui"
)

func newLessonsCmd(c *cli) *cobra.Command {
	var cycle int
	cmd := &cobra.Command{
		Use:   "lessons",
		Short: "列出課程目錄",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			return listLessons(c.out, cat, cycle, terminalWidth())
		},
	}
	cmd.Flags().IntVar(&cycle, "cycle", 0, "only list the lessons of one cycle (1-4)")
	return cmd
}

// listLessons prints every cycle, or only cycle when it is non-zero.
func listLessons(w io.Writer, cat *catalog.Catalog, cycle, width int) error {
	r := tui.NewRenderer(width)
	if cycle == 0 {
		for _, cy := range cat.Cycles() {
			fmt.Fprint(w, r.Cycle(cy, cat.ByCycle(cy.ID), nil))
		}
		return nil
	}
	cy, ok := cat.Cycle(cycle)
	if !ok {
		return fmt.Errorf("unknown cycle %d; choose 1-%d", cycle, len(cat.Cycles()))
	}
	fmt.Fprint(w, r.Cycle(cy, cat.ByCycle(cy.ID), nil))
	return nil
}
