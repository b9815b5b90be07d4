// Package imaging shrinks oversized photos before they are stored and
// computes display sizes for report thumbnails.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultThreshold = 10 * 1024 * 1024
	minQuality       = 0.4
	qualityStep      = 0.1
)

var ErrImageDecode = errors.New("could not decode image")

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

type Options struct {
	MaxWidth     int
	MaxHeight    int
	Quality      float64
	MaxSizeBytes int64
	// Threshold is the size above which CompressIfNeeded compresses at all.
	Threshold    int64
	OutputFormat Format
}

func DefaultOptions() Options {
	return Options{
		MaxWidth:     1920,
		MaxHeight:    1080,
		Quality:      0.85,
		MaxSizeBytes: 8 * 1024 * 1024,
		Threshold:    DefaultThreshold,
		OutputFormat: FormatJPEG,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxWidth <= 0 {
		o.MaxWidth = d.MaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = d.MaxHeight
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = d.Quality
	}
	if o.MaxSizeBytes <= 0 {
		o.MaxSizeBytes = d.MaxSizeBytes
	}
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	// No webp encoder exists for Go; webp requests are written as jpeg.
	if o.OutputFormat != FormatPNG {
		o.OutputFormat = FormatJPEG
	}
	return o
}

type Result struct {
	Data           []byte
	Filename       string
	ContentType    string
	OriginalSize   int64
	CompressedSize int64
	// Ratio is the percentage saved, 0 when the input was returned as is.
	Ratio  int
	Width  int
	Height int
}

func NeedsCompression(size, threshold int64) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return size > threshold
}

// CompressIfNeeded returns the input untouched when it is at or under the
// threshold.
func CompressIfNeeded(data []byte, filename string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	if !NeedsCompression(int64(len(data)), opts.Threshold) {
		return &Result{
			Data:           data,
			Filename:       filename,
			ContentType:    Sniff(data),
			OriginalSize:   int64(len(data)),
			CompressedSize: int64(len(data)),
		}, nil
	}

	return Compress(data, filename, opts)
}

// Compress decodes the image, scales it down to fit MaxWidth x MaxHeight,
// flattens it onto white and re-encodes it. Quality is lowered step by step
// while the output is still above MaxSizeBytes.
func Compress(data []byte, filename string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	bounds := src.Bounds()
	width, height := ScaleDown(bounds.Dx(), bounds.Dy(), opts.MaxWidth, opts.MaxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out []byte
	contentType := "image/jpeg"
	if opts.OutputFormat == FormatPNG {
		contentType = "image/png"
		var buf bytes.Buffer
		if err := png.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		out = buf.Bytes()
	} else {
		for quality := opts.Quality; ; quality -= qualityStep {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
				return nil, fmt.Errorf("encode jpeg: %w", err)
			}
			out = buf.Bytes()

			if int64(len(out)) <= opts.MaxSizeBytes || quality-qualityStep < minQuality {
				break
			}
		}
	}

	original := int64(len(data))
	compressed := int64(len(out))

	return &Result{
		Data:           out,
		Filename:       ReplaceExtension(filename, opts.OutputFormat),
		ContentType:    contentType,
		OriginalSize:   original,
		CompressedSize: compressed,
		Ratio:          int(math.Round((1 - float64(compressed)/float64(original)) * 100)),
		Width:          width,
		Height:         height,
	}, nil
}

// ScaleDown applies min(maxW/w, maxH/h) only when the image exceeds a bound.
func ScaleDown(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}

	ratio := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(math.Floor(float64(w) * ratio))
	nh := int(math.Floor(float64(h) * ratio))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

func ReplaceExtension(filename string, f Format) string {
	ext := ".jpg"
	if f == FormatPNG {
		ext = ".png"
	}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if base == "" {
		base = "foto"
	}
	return base + ext
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
