package images

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/MimeLyc/bioreel/internal/quota"
	"github.com/MimeLyc/bioreel/internal/search"
	"github.com/MimeLyc/bioreel/pkg/file"
	"github.com/MimeLyc/bioreel/pkg/log"
)

var (
	ErrDenied       = errors.New("watermarked domain")
	ErrTooLarge     = errors.New("image too large")
	ErrTimeout      = errors.New("download timeout")
	ErrNotImage     = errors.New("not an image")
	ErrInvalidImage = errors.New("invalid image")
	ErrTooSmall     = errors.New("image too small")
	ErrDuplicate    = errors.New("duplicate image")
	ErrNoLetters    = errors.New("no free filename letters for shot")
	ErrPersist      = errors.New("failed to save image")
)

// getAttempts is one GET plus two retries on timeout.
const getAttempts = 3

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// formatExtensions maps image.Decode format names to stored extensions.
var formatExtensions = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"webp": ".webp",
	"bmp":  ".bmp",
}

var supportedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

// ExtensionFor picks a file extension from the URL path, then the MIME type,
// defaulting to ".jpg".
func ExtensionFor(rawURL, mime string) string {
	if u, err := url.Parse(rawURL); err == nil {
		p := strings.ToLower(u.Path)
		for _, ext := range supportedExtensions {
			if strings.HasSuffix(p, ext) {
				return ext
			}
		}
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if ext, ok := mimeExtensions[mime]; ok {
		return ext
	}
	return ".jpg"
}

// Downloader fetches, validates, deduplicates and stores single images.
// The hash set and the scorer are the only state shared between concurrent
// Fetch calls.
type Downloader struct {
	client   *http.Client
	opts     Options
	scorer   *quota.Scorer
	hashes   *HashSet
	letters  *Letters
	dir      string
	thumbDir string
	now      func() time.Time
}

func NewDownloader(client *http.Client, opts Options, scorer *quota.Scorer, hashes *HashSet, letters *Letters, dir string) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	if scorer == nil {
		scorer = quota.NewScorer(nil)
	}
	if hashes == nil {
		hashes = NewHashSet()
	}
	if letters == nil {
		letters = NewLetters()
	}
	return &Downloader{
		client:   client,
		opts:     opts.withDefaults(),
		scorer:   scorer,
		hashes:   hashes,
		letters:  letters,
		dir:      dir,
		thumbDir: filepath.Join(dir, "thumbnails"),
		now:      time.Now,
	}
}

// Fetch runs one search result through the validation pipeline and, when it
// passes, stores it as "{shot}{letter}{ext}" with the extension of the decoded
// format. Failures come back as a record with DownloadSucceeded false and one
// of the package errors. The HEAD probe and every GET attempt have their own
// deadlines, which together fit in Options.Timeout.
func (d *Downloader) Fetch(ctx context.Context, shot int, r search.Result) (ImageRecord, error) {
	domain := quota.NormalizeDomain(r.Domain())
	rec := ImageRecord{
		Shot:         shot,
		SourceURL:    r.URL,
		ContextURL:   r.ContextURL,
		Title:        r.Title,
		Domain:       domain,
		DomainScore:  d.scorer.Score(domain),
		DownloadedAt: d.now().UTC(),
	}
	fail := func(err error, penalize bool) (ImageRecord, error) {
		if penalize {
			d.scorer.RecordFailure(domain)
		}
		rec.Error = err.Error()
		return rec, err
	}

	if d.scorer.IsDenied(domain) {
		return fail(ErrDenied, false)
	}

	if size, ok := d.probe(ctx, r.URL); ok && size > d.opts.MaxBytes {
		return fail(fmt.Errorf("%w: %.1fMB", ErrTooLarge, float64(size)/(1024*1024)), true)
	}

	data, contentType, err := d.get(ctx, r.URL)
	if err != nil {
		return fail(err, true)
	}
	rec.SizeBytes = int64(len(data))

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidImage, err), true)
	}
	b := img.Bounds()
	rec.Width, rec.Height, rec.Format = b.Dx(), b.Dy(), format
	if rec.Width < d.opts.MinWidth || rec.Height < d.opts.MinHeight {
		return fail(fmt.Errorf("%w: %dx%d", ErrTooSmall, rec.Width, rec.Height), false)
	}

	sum := md5.Sum(data)
	rec.ContentHash = hex.EncodeToString(sum[:])
	if !d.hashes.Add(rec.ContentHash) {
		return fail(ErrDuplicate, false)
	}

	letter, ok := d.letters.Next(shot)
	if !ok {
		d.hashes.Remove(rec.ContentHash)
		return fail(ErrNoLetters, false)
	}
	ext, ok := formatExtensions[format]
	if !ok {
		mime := contentType
		if mime == "" {
			mime = r.Mime
		}
		ext = ExtensionFor(r.URL, mime)
	}
	rec.Filename = fmt.Sprintf("%d%c%s", shot, letter, ext)
	if err := file.WriteAtomic(filepath.Join(d.dir, rec.Filename), data, 0o644); err != nil {
		d.hashes.Remove(rec.ContentHash)
		d.letters.Release(shot, letter)
		return fail(fmt.Errorf("%w: %v", ErrPersist, err), false)
	}

	thumb, err := d.thumbnail(img, format, rec.Filename)
	if err != nil {
		log.Warn("Thumbnail for %s failed: %v", rec.Filename, err)
	}
	rec.Thumbnail = thumb
	rec.DownloadSucceeded = true
	return rec, nil
}

// probe reads Content-Length with a HEAD request. Any failure falls through
// to the GET.
func (d *Downloader) probe(ctx context.Context, rawURL string) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.HeadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, false
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength < 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

// get downloads the body, retrying only on timeouts.
func (d *Downloader) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	var lastErr error
	for attempt := 1; attempt <= getAttempts; attempt++ {
		data, contentType, err := d.getOnce(ctx, rawURL)
		if err == nil {
			return data, contentType, nil
		}
		if !isTimeout(err) {
			return nil, "", err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Debug("Download attempt %d for %s timed out", attempt, rawURL)
	}
	return nil, "", fmt.Errorf("%w: %v", ErrTimeout, lastErr)
}

func (d *Downloader) getOnce(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.opts.MaxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > d.opts.MaxBytes {
		return nil, "", fmt.Errorf("%w: download exceeded size limit", ErrTooLarge)
	}
	return data, contentType, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// thumbnail scales img into the thumbnail box, keeping the aspect ratio and
// never upscaling. WebP has no encoder, so those thumbnails are JPEG files.
func (d *Downloader) thumbnail(img image.Image, format, filename string) (string, error) {
	w, h := fitBox(img.Bounds().Dx(), img.Bounds().Dy(), d.opts.ThumbWidth, d.opts.ThumbHeight)
	if w == 0 || h == 0 {
		return "", fmt.Errorf("empty image")
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	name := filename
	if format == "webp" {
		name = file.ReplaceExt(filename, ".jpg")
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
	case "gif":
		err = gif.Encode(&buf, dst, nil)
	case "bmp":
		err = bmp.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.thumbDir, 0o755); err != nil {
		return "", err
	}
	if err := file.WriteAtomic(filepath.Join(d.thumbDir, name), buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return name, nil
}

func fitBox(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
