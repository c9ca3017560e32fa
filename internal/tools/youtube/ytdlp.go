package youtube

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes argv and returns its standard output.
type Runner func(ctx context.Context, argv []string) ([]byte, error)

// YTDLP is a [Source] driving the yt-dlp command line.
type YTDLP struct {
	command []string
	run     Runner
}

// NewYTDLP returns a Source running command (default ["yt-dlp"]). run
// overrides process execution; nil uses os/exec.
func NewYTDLP(command []string, run Runner) *YTDLP {
	if len(command) == 0 {
		command = []string{"yt-dlp"}
	}
	if run == nil {
		run = execOutput
	}
	return &YTDLP{command: command, run: run}
}

func execOutput(ctx context.Context, argv []string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

func (y *YTDLP) argv(args ...string) []string {
	return append(append([]string(nil), y.command...), args...)
}

// entry is the subset of yt-dlp's --dump-json output used here.
type entry struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Channel    string   `json:"channel"`
	Uploader   string   `json:"uploader"`
	Duration   *float64 `json:"duration"`
	URL        string   `json:"url"`
	WebpageURL string   `json:"webpage_url"`
	LiveStatus string   `json:"live_status"`
}

func (e entry) video() Video {
	v := Video{
		ID:      e.ID,
		Title:   e.Title,
		Channel: e.Channel,
		URL:     e.WebpageURL,
	}
	if v.Channel == "" {
		v.Channel = e.Uploader
	}
	if v.URL == "" {
		v.URL = e.URL
	}
	if v.URL == "" && e.ID != "" {
		v.URL = "https://www.youtube.com/watch?v=" + e.ID
	}
	if e.Duration != nil && *e.Duration > 0 && e.LiveStatus != "is_live" {
		v.Duration = (time.Duration(*e.Duration) * time.Second).String()
	}
	return v
}

// Search implements Source with a flat "ytsearchN:" query.
func (y *YTDLP) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	out, err := y.run(ctx, y.argv(
		"--flat-playlist", "--dump-json", "--no-warnings",
		fmt.Sprintf("ytsearch%d:%s", limit, query),
	))
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}
	var vs []Video
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("yt-dlp search: decode result: %w", err)
		}
		vs = append(vs, e.video())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}
	return vs, nil
}

// Download implements Source, writing the best audio-only stream to path.
func (y *YTDLP) Download(ctx context.Context, videoURL, path string) error {
	if videoURL == "" || path == "" {
		return errors.New("yt-dlp download: url and path are required")
	}
	_, err := y.run(ctx, y.argv(
		"--no-playlist", "--no-part", "--quiet", "--no-warnings",
		"-f", "bestaudio[ext=webm]/bestaudio",
		"-o", path,
		videoURL,
	))
	if err != nil {
		return fmt.Errorf("yt-dlp download: %w", err)
	}
	return nil
}

var _ Source = (*YTDLP)(nil)
