// Package media resolves playable movie files and posters on disk and probes
// feature durations with ffprobe.
package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// Prober reads container durations with ffprobe.
type Prober struct {
	Bin     string        // ffprobe binary, "ffprobe" when empty
	Timeout time.Duration // per probe

	run    func(ctx context.Context, bin string, args ...string) ([]byte, error)
	logger zerolog.Logger
}

// NewProber returns a prober using bin.
func NewProber(bin string, timeout time.Duration) *Prober {
	if strings.TrimSpace(bin) == "" {
		bin = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{
		Bin:     bin,
		Timeout: timeout,
		run: func(ctx context.Context, bin string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, bin, args...).Output()
		},
		logger: xlog.WithComponent("media"),
	}
}

// Duration returns the whole seconds of the media at path.
func (p *Prober) Duration(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.run(ctx, p.Bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseDuration(out)
}

// DurationOrDefault never fails: a probe error yields
// model.DefaultFeatureSeconds so scheduling can proceed.
func (p *Prober) DurationOrDefault(ctx context.Context, path string) int {
	secs, err := p.Duration(ctx, path)
	if err != nil || secs <= 0 {
		p.logger.Warn().Err(err).Str(xlog.FieldPath, path).Int("default_seconds", model.DefaultFeatureSeconds).
			Msg("duration probe failed, using default")
		return model.DefaultFeatureSeconds
	}
	return secs
}

// maxDurationSeconds caps probed durations; one week is far beyond any feature.
const maxDurationSeconds = 7 * 24 * 60 * 60

func parseDuration(out []byte) (int, error) {
	raw := strings.TrimSpace(string(out))
	if raw == "" || raw == "N/A" {
		return 0, errors.New("ffprobe: no duration")
	}
	// Some builds print several lines for multi-program inputs.
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("ffprobe: bad duration %q", raw)
	}
	if f > maxDurationSeconds {
		f = maxDurationSeconds
	}
	return int(f), nil
}
