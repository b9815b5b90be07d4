package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

// FitWithin scales w x h so the longer side is at most max, keeping the
// aspect ratio. Images already inside the bound are left alone.
func FitWithin(w, h, max int) (int, int) {
	if w <= 0 || h <= 0 {
		return max, max
	}

	fw, fh := float64(w), float64(h)
	if w > h {
		if w > max {
			fh = fh * float64(max) / fw
			fw = float64(max)
		}
	} else if h > max {
		fw = fw * float64(max) / fh
		fh = float64(max)
	}

	return int(math.Round(fw)), int(math.Round(fh))
}

// Contain returns the size and offset that fit w x h inside a box without
// cropping, centered.
func Contain(w, h int, boxW, boxH float64) (cw, ch, offX, offY float64) {
	if w <= 0 || h <= 0 {
		return boxW, boxH, 0, 0
	}

	scale := math.Min(boxW/float64(w), boxH/float64(h))
	cw = float64(w) * scale
	ch = float64(h) * scale
	return cw, ch, (boxW - cw) / 2, (boxH - ch) / 2
}

// Dimensions reads only the image header.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// Sniff detects the content type from the bytes, ignoring any declared type.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}

func IsImage(data []byte) bool {
	return IsImageType(Sniff(data))
}

func IsImageType(contentType string) bool {
	return len(contentType) > 6 && contentType[:6] == "image/"
}

// ToJPEG re-encodes any decodable image as a JPEG on a white background.
func ToJPEG(data []byte, quality float64) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrImageDecode
	}

	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
