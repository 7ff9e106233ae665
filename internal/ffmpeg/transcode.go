package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/galleria/internal/fsx"
	"github.com/hbomb79/galleria/internal/toolrun"
	"github.com/hbomb79/galleria/pkg/logger"
)

var log = logger.Get("FFmpeg")

// Config controls the WebM transcode applied to every video asset.
type Config struct {
	FfmpegBinPath string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH" env-default:"ffmpeg"`
	MaxDimension  int           `yaml:"max_dimension" env:"VIDEO_MAX_DIMENSION" env-default:"1920" validate:"gt=0"`
	Crf           uint32        `yaml:"crf" env:"VIDEO_CRF" env-default:"32" validate:"lte=63"`
	VideoCodec    string        `yaml:"video_codec" env:"VIDEO_CODEC" env-default:"libvpx-vp9"`
	AudioCodec    string        `yaml:"audio_codec" env:"AUDIO_CODEC" env-default:"libopus"`
	Timeout       time.Duration `yaml:"timeout" env:"VIDEO_TIMEOUT" env-default:"5m"`
}

type Transcoder struct {
	config Config
	runner toolrun.Runner
}

func New(config Config, runner toolrun.Runner) *Transcoder {
	return &Transcoder{config: config, runner: runner}
}

// Options builds the ffmpeg options for a WebM transcode which preserves aspect
// ratio while clamping the larger spatial dimension. Smaller inputs are
// never upscaled.
func (t *Transcoder) Options() *ffmpeg.Options {
	outputFormat := "webm"
	overwrite := true
	videoCodec := t.config.VideoCodec
	audioCodec := t.config.AudioCodec
	videoBitrate := "0"
	filter := scaleFilter(t.config.MaxDimension)

	return &ffmpeg.Options{
		OutputFormat: &outputFormat,
		Overwrite:    &overwrite,
		VideoCodec:   &videoCodec,
		AudioCodec:   &audioCodec,
		VideoBitRate: &videoBitrate,
		VideoFilter:  &filter,
	}
}

// Args returns the full argument list for transcoding input to output.
func (t *Transcoder) Args(input string, output string) []string {
	args := []string{"-hide_banner", "-nostdin", "-i", input}
	args = append(args, t.Options().GetStrArguments()...)
	args = append(args, "-crf", strconv.FormatUint(uint64(t.config.Crf), 10))
	return append(args, output)
}

// Transcode converts input to a WebM at output. The encoder writes to a
// temporary sibling which is only renamed in to place on success.
func (t *Transcoder) Transcode(ctx context.Context, input string, output string) error {
	tmp, err := fsx.TempSibling(output)
	if err != nil {
		return fmt.Errorf("failed to reserve temporary output for %s: %w", output, err)
	}

	log.Debugf("Transcoding %s -> %s\n", input, output)
	_, err = t.runner.Run(ctx, toolrun.Invocation{
		Command: t.config.FfmpegBinPath,
		Args:    t.Args(input, tmp),
		Timeout: t.config.Timeout,
	})
	if err != nil {
		_ = removeQuietly(tmp)
		return parseFfmpegError(err)
	}

	return fsx.Promote(tmp, output)
}

// scaleFilter clamps whichever dimension is larger to max, letting ffmpeg derive
// the other (rounded to an even number, as required by VP9).
func scaleFilter(max int) string {
	return fmt.Sprintf("scale='if(gte(iw,ih),min(iw,%[1]d),-2)':'if(gte(iw,ih),-2,min(ih,%[1]d))'", max)
}

var ffmpegErrorLine = regexp.MustCompile(`(?i)(error|invalid|no such file|not found|unknown|could not|failed)`)

// parseFfmpegError trims the (often huge) ffmpeg output attached to a
// ToolError down to the lines which describe the failure.
func parseFfmpegError(err error) error {
	toolErr, ok := err.(*toolrun.ToolError)
	if !ok || toolErr.TimedOut || toolErr.Output == "" {
		return err
	}

	relevant := make([]string, 0, 4)
	for _, line := range strings.Split(toolErr.Output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && ffmpegErrorLine.MatchString(line) {
			relevant = append(relevant, line)
		}
	}
	if len(relevant) == 0 {
		return err
	}
	if len(relevant) > 4 {
		relevant = relevant[len(relevant)-4:]
	}

	trimmed := *toolErr
	trimmed.Output = strings.Join(relevant, "\n")
	return &trimmed
}

func removeQuietly(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Failed to remove temporary output %s: %v\n", path, err)
		return err
	}

	return nil
}
