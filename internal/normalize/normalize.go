// Package normalize converts individual gallery assets in to the standard
// output formats: palette-reduced PNG for every still kind and WebM for video.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hbomb79/galleria/internal/fsx"
	"github.com/hbomb79/galleria/internal/imgx"
	"github.com/hbomb79/galleria/internal/media"
	"github.com/hbomb79/galleria/internal/namekey"
	"github.com/hbomb79/galleria/internal/report"
	"github.com/hbomb79/galleria/internal/toolrun"
	"github.com/hbomb79/galleria/pkg/logger"
	gbytes "github.com/labstack/gommon/bytes"
)

var log = logger.Get("Normalize")

type (
	// RasterCodec decodes, resizes and encodes still images. Encode returns the
	// complete PNG payload so the caller can apply the size policy before
	// anything is written.
	RasterCodec interface {
		Decode(ctx context.Context, path string) (image.Image, error)
		Resize(img image.Image, maxDimension int) image.Image
		Encode(img image.Image, profile imgx.Profile) ([]byte, error)
	}

	VideoTranscoder interface {
		Transcode(ctx context.Context, input string, output string) error
	}

	Config struct {
		MaxDimension     int           `yaml:"max_dimension" env:"IMAGE_MAX_DIMENSION" env-default:"2500" validate:"gt=0"`
		MaxBytes         int64         `yaml:"max_bytes" env:"IMAGE_MAX_BYTES" env-default:"1048576" validate:"gt=0"`
		PdfDPI           int           `yaml:"pdf_dpi" env:"PDF_DPI" env-default:"150" validate:"gt=0"`
		PdftocairoPath   string        `yaml:"pdftocairo_path" env:"PDFTOCAIRO_PATH" env-default:"pdftocairo"`
		MagickPath       string        `yaml:"magick_path" env:"MAGICK_PATH" env-default:"magick"`
		HeifConvertPath  string        `yaml:"heif_convert_path" env:"HEIF_CONVERT_PATH" env-default:"heif-convert"`
		ImageTimeout     time.Duration `yaml:"image_timeout" env:"IMAGE_TIMEOUT" env-default:"2m"`
		RasterizeTimeout time.Duration `yaml:"rasterize_timeout" env:"RASTERIZE_TIMEOUT" env-default:"3m"`
	}

	// Job is one asset with its output location fixed ahead of conversion.
	Job struct {
		Asset      media.Asset
		Index      int
		Total      int
		OutputPath string
	}

	Normalizer struct {
		config Config
		codec  RasterCodec
		video  VideoTranscoder
		runner toolrun.Runner
	}
)

func New(config Config, codec RasterCodec, video VideoTranscoder, runner toolrun.Runner) *Normalizer {
	return &Normalizer{config: config, codec: codec, video: video, runner: runner}
}

// OutputName renders "{year}_{name_underscored}_image{NN}of{TT}{ext}" for the
// 1-based index provided. NN and TT are zero padded to the same width,
// at least two digits.
func OutputName(key namekey.ProjectKey, index int, total int, ext string) string {
	width := len(fmt.Sprint(total))
	if width < 2 {
		width = 2
	}

	return fmt.Sprintf("%s_image%0*dof%0*d%s", key.Underscored(), width, index, width, total, ext)
}

// PlanJobs assigns every asset its index and output path. Assets must already
// be in their canonical (sorted) order; the plan is fixed before any
// conversion begins.
func PlanJobs(key namekey.ProjectKey, assets []media.Asset, targetGallery string) []Job {
	jobs := make([]Job, len(assets))
	for i, asset := range assets {
		jobs[i] = Job{
			Asset:      asset,
			Index:      i + 1,
			Total:      len(assets),
			OutputPath: filepath.Join(targetGallery, OutputName(key, i+1, len(assets), asset.OutputExt)),
		}
	}

	return jobs
}

// Normalize converts a single asset. Every error is captured in the returned
// result; a failure here never affects sibling assets.
func (n *Normalizer) Normalize(ctx context.Context, job Job) report.ConversionResult {
	result := report.ConversionResult{
		Asset:      job.Asset,
		OutputPath: job.OutputPath,
		OutputExt:  filepath.Ext(job.OutputPath),
	}

	var err error
	if job.Asset.Route == media.VideoTranscode {
		err = n.transcodeVideo(ctx, job)
	} else {
		err = n.convertStill(ctx, job, &result)
	}

	if err != nil {
		var trouble *Trouble
		if !errors.As(err, &trouble) {
			trouble = newTrouble(report.ConversionFailure, err)
		}

		result.ErrorKind = trouble.Kind()
		result.FailureReason = trouble.Error()
		log.Warnf("Failed to convert %s: %v\n", job.Asset.SourcePath, trouble)
		return result
	}

	result.Success = true
	if fi, statErr := os.Stat(job.OutputPath); statErr == nil {
		result.OutputBytes = fi.Size()
	}

	log.Emit(logger.SUCCESS, "Converted %s -> %s (%s)\n", job.Asset.Name, filepath.Base(job.OutputPath), gbytes.Format(result.OutputBytes))
	return result
}

func (n *Normalizer) transcodeVideo(ctx context.Context, job Job) error {
	if err := fsx.EnsureDir(filepath.Dir(job.OutputPath)); err != nil {
		return newTrouble(report.TargetUnavailable, err)
	}
	if err := n.video.Transcode(ctx, job.Asset.SourcePath, job.OutputPath); err != nil {
		return newTrouble(report.ConversionFailure, err)
	}

	return nil
}

// convertStill decodes, resizes and encodes a still in-process. The codec calls
// are not interruptible, so ImageTimeout and cancellation are observed only
// between them.
func (n *Normalizer) convertStill(ctx context.Context, job Job, result *report.ConversionResult) error {
	workDir, err := os.MkdirTemp("", "galleria-*")
	if err != nil {
		return conversionTrouble("failed to create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	source, err := n.rasterize(ctx, job.Asset, workDir)
	if err != nil {
		return err
	}

	if n.config.ImageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.config.ImageTimeout)
		defer cancel()
	}

	img, err := n.codec.Decode(ctx, source)
	if err != nil {
		return conversionTrouble("decode failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return conversionTrouble("conversion of %s abandoned: %w", job.Asset.Name, err)
	}

	img = n.codec.Resize(img, n.config.MaxDimension)
	if err := ctx.Err(); err != nil {
		return conversionTrouble("conversion of %s abandoned: %w", job.Asset.Name, err)
	}

	data, err := n.codec.Encode(img, imgx.Q1)
	if err != nil {
		return conversionTrouble("encode failed: %w", err)
	}
	result.Profile = imgx.Q1.Name

	if int64(len(data)) > n.config.MaxBytes {
		log.Debugf("%s is %s after %s encode, re-encoding with %s\n", job.Asset.Name, gbytes.Format(int64(len(data))), imgx.Q1.Name, imgx.Q2.Name)
		if err := ctx.Err(); err != nil {
			return conversionTrouble("conversion of %s abandoned: %w", job.Asset.Name, err)
		}

		data, err = n.codec.Encode(img, imgx.Q2)
		if err != nil {
			return conversionTrouble("encode failed: %w", err)
		}

		result.Profile = imgx.Q2.Name
		if int64(len(data)) > n.config.MaxBytes {
			result.Warning = report.SizeExceeded
		}
	}

	if err := fsx.WriteFileAtomicBytes(job.OutputPath, data); err != nil {
		return newTrouble(report.TargetUnavailable, fmt.Errorf("failed to write %s: %w", job.OutputPath, err))
	}

	return nil
}

// rasterize returns a path the raster codec can decode directly. Formats
// needing an external decoder are converted to a PNG inside workDir.
func (n *Normalizer) rasterize(ctx context.Context, asset media.Asset, workDir string) (string, error) {
	var inv toolrun.Invocation
	var produced string

	switch asset.Route {
	case media.NativeRaster:
		return asset.SourcePath, nil
	case media.HeifDecode:
		produced = filepath.Join(workDir, "decoded.png")
		inv = toolrun.Invocation{
			Command: n.config.HeifConvertPath,
			Args:    []string{asset.SourcePath, produced},
			Timeout: n.config.RasterizeTimeout,
		}
	case media.PdfRasterize:
		prefix := filepath.Join(workDir, "page")
		produced = prefix + ".png"
		inv = toolrun.Invocation{
			Command: n.config.PdftocairoPath,
			Args:    []string{"-png", "-singlefile", "-r", fmt.Sprint(n.config.PdfDPI), "-f", "1", "-l", "1", asset.SourcePath, prefix},
			Timeout: n.config.RasterizeTimeout,
		}
	case media.VectorFlatten:
		produced = filepath.Join(workDir, "flat.png")
		inv = toolrun.Invocation{
			Command: n.config.MagickPath,
			Args:    []string{asset.SourcePath + "[0]", "-flatten", produced},
			Timeout: n.config.RasterizeTimeout,
		}
	default:
		return "", conversionTrouble("no raster route for %s", strings.ToLower(asset.Extension))
	}

	if _, err := n.runner.Run(ctx, inv); err != nil {
		return "", newTrouble(report.ConversionFailure, err)
	}
	if ok, err := fsx.Exists(produced); err != nil || !ok {
		return "", conversionTrouble("%s produced no output for %s", inv.Command, asset.Name)
	}

	return produced, nil
}
