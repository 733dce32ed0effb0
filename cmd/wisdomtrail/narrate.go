package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/wisdomtrail/internal/catalog"
	"github.com/MrWong99/wisdomtrail/internal/narration"
	"github.com/MrWong99/wisdomtrail/internal/wizard"
	"github.com/MrWong99/wisdomtrail/pkg/audio"
)

type narrateOptions struct {
	lesson      int
	step        string
	perspective string
	output      string
}

func newNarrateCmd(c *cli) *cobra.Command {
	var o narrateOptions
	cmd := &cobra.Command{
		Use:   "narrate",
		Short: "將一個步驟的朗讀內容輸出為 WAV 檔",
		Example: `  wisdomtrail narrate --lesson 3 --step tension -o tension.wav
  wisdomtrail narrate --lesson 3 --step perspectives --perspective job -o - | aplay`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.narrate(cmd.Context(), o)
		},
	}
	cmd.Flags().IntVarP(&o.lesson, "lesson", "l", 0, "lesson number (1-24)")
	cmd.Flags().StringVarP(&o.step, "step", "s", "life_question",
		"step to read: life_question, perspectives, tension, discussion or summary")
	cmd.Flags().StringVarP(&o.perspective, "perspective", "p", "",
		"on the perspectives step, read only this book (proverbs, ecclesiastes, job)")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "WAV file to write, - for stdout")
	_ = cmd.MarkFlagRequired("lesson")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (c *cli) narrate(ctx context.Context, o narrateOptions) error {
	a, err := c.newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Shutdown(context.WithoutCancel(ctx))

	text, err := narrationText(a.Catalog(), o)
	if err != nil {
		return err
	}
	if !a.Synthesizer().Available() {
		return fmt.Errorf("%w: configure providers.tts", narration.ErrUnavailable)
	}

	eng := a.NewRenderer()
	defer eng.Close()
	eng.SetText(text)
	buf, err := eng.Render(ctx)
	if err != nil {
		return err
	}

	var w io.Writer = c.out
	if o.output != "-" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := audio.WriteWAV(w, buf, eng.Volume()); err != nil {
		return fmt.Errorf("write %s: %w", o.output, err)
	}
	c.log.Info("narration written", "lesson", o.lesson, "step", o.step, "duration", buf.Duration(), "output", o.output)
	return nil
}

// narrationText resolves the read-aloud text selected by o. Steps are
// accepted in any case, with hyphens or underscores.
func narrationText(cat *catalog.Catalog, o narrateOptions) (string, error) {
	l, ok := cat.Lesson(o.lesson)
	if !ok {
		return "", fmt.Errorf("unknown lesson %d", o.lesson)
	}
	step, err := wizard.ParseStep(strings.ToUpper(strings.ReplaceAll(o.step, "-", "_")))
	if err != nil {
		return "", err
	}
	s := wizard.New(l)
	if o.perspective == "" {
		return s.NarrationFor(step), nil
	}
	if step != wizard.Perspectives {
		return "", errors.New("--perspective only applies to the perspectives step")
	}
	p := catalog.Perspective(strings.ToUpper(o.perspective))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown perspective %q", o.perspective)
	}
	return s.PerspectiveNarration(p), nil
}
