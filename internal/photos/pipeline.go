// Package photos validates, compresses and stores uploaded problem photos and
// fetches them back when reports are assembled.
package photos

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"obralog/internal/imaging"
	"obralog/internal/storage"
	"obralog/internal/utils"

	"github.com/sirupsen/logrus"
)

const DefaultMaxBytes = 10 * 1024 * 1024

// sourceFactor bounds how far over the stored limit a source photo may be
// and still be accepted for compression.
const sourceFactor = 4

type File struct {
	Filename string
	// ContentType is what the client declared. The sniffed type wins.
	ContentType string
	Data        []byte
}

type Uploaded struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	Key          string `json:"-"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	OriginalSize int64  `json:"-"`
	Ratio        int    `json:"-"`
}

type Result struct {
	Filename string
	Uploaded *Uploaded
	Err      error
}

type Pipeline struct {
	logger   *logrus.Logger
	blob     storage.Blob
	maxBytes int64
	compress imaging.Options
	now      func() time.Time
}

// NewPipeline accepts a nil blob, in which case every upload fails with
// ErrUploadDisabled.
func NewPipeline(logger *logrus.Logger, blob storage.Blob, maxBytes int64) *Pipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Pipeline{
		logger:   logger,
		blob:     blob,
		maxBytes: maxBytes,
		compress: imaging.DefaultOptions(),
		now:      time.Now,
	}
}

func (p *Pipeline) Enabled() bool {
	return p.blob != nil
}

func (p *Pipeline) MaxBytes() int64 {
	return p.maxBytes
}

// MaxSourceBytes is the largest photo Process reads before compressing. The
// stored result must still fit in MaxBytes.
func (p *Pipeline) MaxSourceBytes() int64 {
	return p.maxBytes * sourceFactor
}

// Process compresses the file when it is over the threshold, then checks
// the type and size and stores it.
func (p *Pipeline) Process(ctx context.Context, f File) (*Uploaded, error) {
	if len(f.Data) == 0 {
		return nil, ErrNoFile
	}

	if !imaging.IsImage(f.Data) {
		return nil, ErrNotImage
	}

	originalSize := int64(len(f.Data))
	if originalSize > p.MaxSourceBytes() {
		return nil, ErrTooLarge
	}

	data, filename, ratio := f.Data, f.Filename, 0

	if imaging.NeedsCompression(originalSize, p.compress.Threshold) {
		res, err := imaging.Compress(f.Data, f.Filename, p.compress)
		if err != nil {
			p.logger.WithError(err).WithField("filename", f.Filename).Warn("compression failed, uploading original")
		} else {
			data, filename, ratio = res.Data, res.Filename, res.Ratio
			p.logger.WithFields(logrus.Fields{
				"filename":        f.Filename,
				"original_size":   res.OriginalSize,
				"compressed_size": res.CompressedSize,
				"ratio":           res.Ratio,
			}).Info("photo compressed")
		}
	}

	if int64(len(data)) > p.maxBytes {
		return nil, ErrTooLarge
	}

	if p.blob == nil {
		return nil, ErrUploadDisabled
	}

	contentType := imaging.Sniff(data)
	key := ObjectKey(p.now(), filename)

	url, err := p.blob.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	return &Uploaded{
		URL:          url,
		Filename:     filename,
		Key:          key,
		Size:         int64(len(data)),
		Type:         contentType,
		OriginalSize: originalSize,
		Ratio:        ratio,
	}, nil
}

// ProcessBatch handles files one at a time in order. A failure is recorded
// on its own result and the next file is still attempted.
func (p *Pipeline) ProcessBatch(ctx context.Context, files []File) []Result {
	results := make([]Result, 0, len(files))
	for _, f := range files {
		up, err := p.Process(ctx, f)
		if err != nil {
			p.logger.WithError(err).WithField("filename", f.Filename).Warn("photo upload failed")
		}
		results = append(results, Result{Filename: f.Filename, Uploaded: up, Err: err})
	}
	return results
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectKey is problem-<unix ms>-<nanoid>-<sanitized name>.
func ObjectKey(now time.Time, filename string) string {
	name := filepath.Base(strings.TrimSpace(filename))
	name = unsafeKeyChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" || name == "." {
		name = "foto"
	}

	return fmt.Sprintf("problem-%d-%s-%s", now.UnixMilli(), utils.NanoIDSize(8), name)
}
