package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/wisdomtrail/internal/tui"
)

func newPlayCmd(c *cli) *cobra.Command {
	var (
		width   int
		noClear bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "在終端機中進行課程",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.play(ctx, width, noClear)
		},
	}
	cmd.Flags().IntVar(&width, "width", terminalWidth(), "terminal width in columns")
	cmd.Flags().BoolVar(&noClear, "no-clear", false, "keep earlier output instead of clearing the screen")
	return cmd
}

func (c *cli) play(ctx context.Context, width int, noClear bool) error {
	a, err := c.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			c.log.Error("shutdown error", "err", err)
		}
	}()

	ctrl := a.NewController(nil)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	narrator := a.NewEngine()
	defer narrator.Close()
	mic := a.NewCapture()
	defer mic.Close()

	opts := []tui.Option{
		tui.WithRenderer(tui.NewRenderer(width)),
		tui.WithCapture(mic),
		tui.WithLogger(c.log),
	}
	if noClear {
		opts = append(opts, tui.WithoutClear())
	}
	return tui.New(ctrl, narrator, c.in, c.out, opts...).Run(ctx)
}

// terminalWidth reads $COLUMNS, falling back to 100.
func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return 100
}
