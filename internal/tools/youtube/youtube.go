// Package youtube provides the "youtube" tool group: searching YouTube,
// caching a video's audio track on disk and playing it through an external
// player while the assistant keeps listening.
//
// Cached files are named after the URL-escaped video title so the cache can
// be searched by title without an index.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

const (
	cacheExt          = ".webm"
	defaultMaxResults = 3
	maxResults        = 10

	searchTimeout   = 30 * time.Second
	downloadTimeout = 5 * time.Minute
)

// Video is one search result or cached file.
type Video struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Channel  string `json:"channel,omitempty"`
	Duration string `json:"duration,omitempty"`
	URL      string `json:"url,omitempty"`
	Cached   bool   `json:"cached"`
}

// Source finds videos and downloads their audio.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]Video, error)
	Download(ctx context.Context, videoURL, path string) error
}

// Player plays one audio file at a time in the background.
type Player interface {
	// Play stops any current playback and starts path. It returns once
	// playback has started.
	Play(path string) error
	Stop()
	Playing() bool
}

// Library ties a Source and a Player to a cache directory.
type Library struct {
	dir    string
	src    Source
	player Player
}

// New returns a Library caching audio in dir, creating it if needed.
func New(dir string, src Source, player Player) (*Library, error) {
	if src == nil || player == nil {
		return nil, errors.New("youtube: source and player are required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("youtube: create cache dir: %w", err)
	}
	return &Library{dir: dir, src: src, player: player}, nil
}

// Dir returns the cache directory.
func (l *Library) Dir() string { return l.dir }

func (l *Library) path(title string) string {
	return filepath.Join(l.dir, url.QueryEscape(title)+cacheExt)
}

func (l *Library) cached(title string) bool {
	_, err := os.Stat(l.path(title))
	return err == nil
}

// Search returns up to limit playable videos for query. Live streams and
// results without a channel are skipped.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("youtube: query is required")
	}
	if limit <= 0 {
		limit = defaultMaxResults
	}
	limit = min(limit, maxResults)

	found, err := l.src.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("youtube: search: %w", err)
	}
	out := make([]Video, 0, limit)
	for _, v := range found {
		if v.Channel == "" || v.Duration == "" {
			slog.Debug("youtube: skipping result", "title", v.Title, "id", v.ID)
			continue
		}
		v.Cached = l.cached(v.Title)
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// SearchCache returns the cached videos whose title contains query, case
// insensitively. An empty query lists the whole cache.
func (l *Library) SearchCache(query string) ([]Video, error) {
	files, err := filepath.Glob(filepath.Join(l.dir, "*"+cacheExt))
	if err != nil {
		return nil, fmt.Errorf("youtube: list cache: %w", err)
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := []Video{}
	for _, f := range files {
		title, err := url.QueryUnescape(strings.TrimSuffix(filepath.Base(f), cacheExt))
		if err != nil {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(title), q) {
			continue
		}
		out = append(out, Video{Title: title, Cached: true})
	}
	return out, nil
}

// Play downloads v's audio unless it is cached and starts playing it.
func (l *Library) Play(ctx context.Context, v Video) error {
	if v.Title == "" {
		return errors.New("youtube: title is required")
	}
	path := l.path(v.Title)
	if !l.cached(v.Title) {
		if v.URL == "" {
			return fmt.Errorf("youtube: %q is not cached and has no url", v.Title)
		}
		slog.Info("youtube: downloading", "title", v.Title, "url", v.URL)
		if err := l.src.Download(ctx, v.URL, path); err != nil {
			_ = os.Remove(path)
			return fmt.Errorf("youtube: download %q: %w", v.Title, err)
		}
	}
	if err := l.player.Play(path); err != nil {
		return fmt.Errorf("youtube: play %q: %w", v.Title, err)
	}
	slog.Info("youtube: playing", "title", v.Title)
	return nil
}

// Delete removes title from the cache. Deleting a file that is not cached is
// not an error.
func (l *Library) Delete(title string) error {
	if title == "" {
		return errors.New("youtube: title is required")
	}
	if err := os.Remove(l.path(title)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("youtube: delete %q: %w", title, err)
	}
	return nil
}

// Stop ends playback.
func (l *Library) Stop() { l.player.Stop() }

// Playing reports whether something is playing.
func (l *Library) Playing() bool { return l.player.Playing() }

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type titleArgs struct {
	Title string `json:"title"`
}

// Tools returns the youtube tools bound to l.
func Tools(l *Library) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "search_youtube",
				Description: "Searches YouTube for videos or songs. Returns an empty list when nothing matches.",
				Parameters: tools.Object(map[string]any{
					"query":       tools.String("The search query."),
					"max_results": tools.Integer("Maximum number of results, default 3."),
				}, "query"),
			},
			Group:   tools.GroupYouTube,
			Timeout: searchTimeout,
			Handler: func(ctx context.Context, args string) (string, error) {
				a, err := tools.Decode[searchArgs](args)
				if err != nil {
					return "", err
				}
				vs, err := l.Search(ctx, a.Query, a.MaxResults)
				if err != nil {
					return "", err
				}
				return tools.Encode(vs)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "search_local_cache",
				Description: "Searches the locally stored YouTube videos or songs by title.",
				Parameters: tools.Object(map[string]any{
					"query": tools.String("Part of the title. Empty lists everything."),
				}),
			},
			Group: tools.GroupYouTube,
			Handler: func(_ context.Context, args string) (string, error) {
				a, err := tools.Decode[searchArgs](args)
				if err != nil {
					return "", err
				}
				vs, err := l.SearchCache(a.Query)
				if err != nil {
					return "", err
				}
				return tools.Encode(vs)
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "play_youtube_video",
				Description: "Plays the audio of a YouTube video found by search_youtube or search_local_cache.",
				Parameters: tools.Object(map[string]any{
					"title": tools.String("The video title."),
					"url":   tools.String("The video URL. Not needed for cached videos."),
				}, "title"),
			},
			Group:   tools.GroupYouTube,
			Timeout: downloadTimeout,
			Handler: func(ctx context.Context, args string) (string, error) {
				v, err := tools.Decode[Video](args)
				if err != nil {
					return "", err
				}
				if err := l.Play(ctx, v); err != nil {
					return "", err
				}
				return fmt.Sprintf("Playing %s.", v.Title), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "stop_playing",
				Description: "Stops the video or song that is playing.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupYouTube,
			Handler: func(context.Context, string) (string, error) {
				l.Stop()
				return "Stopped.", nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "is_playing",
				Description: "Reports whether a video or song is playing.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupYouTube,
			Handler: func(context.Context, string) (string, error) {
				return fmt.Sprint(l.Playing()), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "delete_youtube_video",
				Description: "Deletes a locally cached video or song.",
				Parameters: tools.Object(map[string]any{
					"title": tools.String("The cached video title."),
				}, "title"),
			},
			Group: tools.GroupYouTube,
			Handler: func(_ context.Context, args string) (string, error) {
				a, err := tools.Decode[titleArgs](args)
				if err != nil {
					return "", err
				}
				if err := l.Delete(a.Title); err != nil {
					return "", err
				}
				return fmt.Sprintf("Deleted %s.", a.Title), nil
			},
		},
	}
}
