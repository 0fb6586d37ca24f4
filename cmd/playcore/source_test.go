package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PizzaHomicide/playcore/internal/media"
)

func newSourceCmd(t *testing.T, flags ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addSourceFlags(cmd)
	require.NoError(t, cmd.ParseFlags(flags))
	return cmd
}

func TestSourceFromFlags(t *testing.T) {
	t.Run("Flags", func(t *testing.T) {
		cmd := newSourceCmd(t, "--type", "hls", "--title", "News", "--live")
		src, err := sourceFromFlags(cmd, []string{"https://cdn.example.com/news.m3u8"})
		require.NoError(t, err)

		assert.Equal(t, "https://cdn.example.com/news.m3u8", src.URI)
		assert.Equal(t, media.VideoTypeHLS, src.Type)
		assert.Equal(t, "News", src.Title)
		require.NotNil(t, src.IsLive)
		assert.True(t, *src.IsLive)
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "source.yaml")
		data := `uri: https://cdn.example.com/movie.mpd
type: dash
title: Movie
text_tracks:
  - uri: https://cdn.example.com/movie.en.vtt
    language: en
    kind: subtitles
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0600))

		cmd := newSourceCmd(t, "--source", path, "--vod")
		src, err := sourceFromFlags(cmd, nil)
		require.NoError(t, err)

		assert.Equal(t, media.VideoTypeDASH, src.Type)
		assert.Equal(t, "Movie", src.Title)
		require.Len(t, src.TextTracks, 1)
		assert.Equal(t, "en", src.TextTracks[0].Language)
		require.NotNil(t, src.IsLive)
		assert.False(t, *src.IsLive)
	})

	t.Run("ArgumentOverridesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "source.yaml")
		require.NoError(t, os.WriteFile(path, []byte("uri: https://a.example.com/a.mp4\ntype: mp4\n"), 0600))

		src, err := sourceFromFlags(newSourceCmd(t, "--source", path), []string{"https://b.example.com/b.mp4"})
		require.NoError(t, err)
		assert.Equal(t, "https://b.example.com/b.mp4", src.URI)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := sourceFromFlags(newSourceCmd(t), []string{"https://cdn.example.com/a.mp4"})
		assert.ErrorIs(t, err, media.ErrInvalidSource)
	})
}

func TestTitleOf(t *testing.T) {
	assert.Equal(t, "Pilot", titleOf(media.VideoSource{URI: "https://e.com/v.mp4", Title: "Pilot"}))
	assert.Equal(t, "v.mp4", titleOf(media.VideoSource{URI: "https://e.com/v.mp4"}))
}
