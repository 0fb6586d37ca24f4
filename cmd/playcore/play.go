package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/playback"
	"github.com/PizzaHomicide/playcore/internal/player"
)

const statusInterval = time.Second

var playCmd = &cobra.Command{
	Use:   "play [uri]",
	Short: "Play a source and print state changes until it ends",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := sourceFromFlags(cmd, args)
		if err != nil {
			return err
		}
		if autoplay, _ := cmd.Flags().GetBool("autoplay"); autoplay {
			src.Autoplay = true
		}
		surface, _ := cmd.Flags().GetString("surface")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return play(ctx, cmd.OutOrStdout(), player.NewFactory(cfg), src, surface)
	},
}

func init() {
	addSourceFlags(playCmd)
	playCmd.Flags().Bool("autoplay", true, "Start playback as soon as the source is loaded")
	playCmd.Flags().String("surface", "", "Native window handle to render video into")
}

func play(ctx context.Context, out io.Writer, factory *player.Factory, src media.VideoSource, surface string) error {
	session := factory.NewSession(src)
	defer session.Close()

	// An ended source settles in ready, so the end is recognised by the event that caused the transition
	done := make(chan error, 1)
	session.Observe(func(tr playback.Transition) {
		_, _ = fmt.Fprintln(out, field("State", fmt.Sprintf("%s -> %s", tr.From, okStyle.Render(tr.To.String()))))
		var result error
		switch {
		case tr.To == playback.StateError:
			result = errors.New("playback failed")
		case tr.Cause == events.Ended:
		default:
			return
		}
		select {
		case done <- result:
		default:
		}
	})

	ctrl := session.Controller()
	_, _ = fmt.Fprintln(out, titleStyle.Render("Playing "+titleOf(src)))
	_, _ = fmt.Fprintln(out, field("Player", string(ctrl.Type())))

	if surface != "" {
		ctrl.OnSurfaceViewCreated(ctx, playback.ViewHandle(surface))
	}
	if err := session.Start(ctx, src); err != nil {
		return err
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Playback interrupted")
			return nil
		case err := <-done:
			if err == nil {
				_, _ = fmt.Fprintln(out, okStyle.Render("Finished"))
			}
			return err
		case <-ticker.C:
			ctrl := session.Controller()
			if ctrl == nil || !session.State().IsPlayable() {
				continue
			}
			_, _ = fmt.Fprintln(out, field("Position", positionLine(ctrl)))
		}
	}
}

func positionLine(ctrl playback.Controller) string {
	position, duration := ctrl.PlaybackTime(), ctrl.Duration()
	total := media.FormatTime(nil)
	if duration > 0 {
		total = media.FormatTime(&duration)
	}
	return fmt.Sprintf("%s / %s", media.FormatTime(&position), total)
}

func titleOf(src media.VideoSource) string {
	if src.Title != "" {
		return src.Title
	}
	return src.URI[strings.LastIndex(src.URI, "/")+1:]
}
