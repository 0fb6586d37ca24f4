package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/PizzaHomicide/playcore/internal/media"
)

// addSourceFlags registers the flags describing a video source on cmd
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("source", "s", "", "YAML file describing the video source")
	cmd.Flags().StringP("type", "t", "", "Video type of the URI argument: mp4, dash or hls")
	cmd.Flags().String("title", "", "Title shown by the player")
	cmd.Flags().Bool("live", false, "Mark the source as a live stream")
	cmd.Flags().Bool("vod", false, "Mark the source as video on demand")
	cmd.MarkFlagsMutuallyExclusive("live", "vod")
}

// sourceFromFlags builds a VideoSource from --source, or from the URI argument and the remaining flags
func sourceFromFlags(cmd *cobra.Command, args []string) (media.VideoSource, error) {
	var src media.VideoSource

	if path, _ := cmd.Flags().GetString("source"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return src, fmt.Errorf("unable to read source file: %w", err)
		}
		if err := yaml.Unmarshal(data, &src); err != nil {
			return src, fmt.Errorf("unable to parse source file: %w", err)
		}
	}

	if len(args) > 0 {
		src.URI = args[0]
	}
	if t, _ := cmd.Flags().GetString("type"); t != "" {
		src.Type = media.VideoType(t)
	}
	if title, _ := cmd.Flags().GetString("title"); title != "" {
		src.Title = title
	}
	if live, _ := cmd.Flags().GetBool("live"); live {
		src.IsLive = media.Live(true)
	}
	if vod, _ := cmd.Flags().GetBool("vod"); vod {
		src.IsLive = media.Live(false)
	}

	if err := media.Validate(src); err != nil {
		return src, err
	}
	return src, nil
}
