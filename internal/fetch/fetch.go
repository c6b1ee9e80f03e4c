package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"opuspress/internal/services"
	"opuspress/internal/textutil"
)

// Source produces a local file for the pipeline to encode. Materialize
// may write into dir, which the job owns exclusively; anything written
// there is removed with the job's working directory.
type Source interface {
	// Name returns the display name of the source (a filename).
	Name() string
	// Materialize returns a local path to the source bytes and their size.
	Materialize(ctx context.Context, dir string) (string, int64, error)
}

// DefaultHTTPTimeout bounds a remote source download.
const DefaultHTTPTimeout = 30 * time.Second

// audioExtensions lists source suffixes accepted without an audio
// content type. ffmpeg decodes the actual stream; this is only a cheap
// filter against obviously wrong URLs.
var audioExtensions = map[string]struct{}{
	".aac": {}, ".flac": {}, ".m4a": {}, ".m4b": {}, ".mka": {},
	".mp3": {}, ".mp4": {}, ".oga": {}, ".ogg": {}, ".opus": {},
	".wav": {}, ".webm": {}, ".wma": {},
}

// FileSource wraps a file that already exists on the local filesystem.
type FileSource struct {
	path     string
	maxBytes int64
}

// NewFileSource builds a Source around a local path. maxBytes <= 0
// disables the size cap.
func NewFileSource(path string, maxBytes int64) *FileSource {
	return &FileSource{path: path, maxBytes: maxBytes}
}

func (s *FileSource) Name() string {
	return filepath.Base(s.path)
}

// Materialize validates the file in place; the pipeline reads it where
// it lives rather than copying it into dir.
func (s *FileSource) Materialize(_ context.Context, _ string) (string, int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return "", 0, services.Wrap(services.ErrValidation, "fetch", "stat source", "source file not accessible", err)
	}
	if !info.Mode().IsRegular() {
		return "", 0, services.Wrap(services.ErrValidation, "fetch", "stat source", "source is not a regular file", nil)
	}
	if err := checkSize(info.Size(), s.maxBytes); err != nil {
		return "", 0, err
	}
	return s.path, info.Size(), nil
}

// ReaderSource saves an uploaded stream into the working directory.
type ReaderSource struct {
	name     string
	reader   io.Reader
	maxBytes int64
}

// NewReaderSource builds a Source around an upload stream. The name is
// sanitized before use as a filename.
func NewReaderSource(name string, reader io.Reader, maxBytes int64) *ReaderSource {
	return &ReaderSource{name: sourceFileName(name), reader: reader, maxBytes: maxBytes}
}

func (s *ReaderSource) Name() string {
	return s.name
}

func (s *ReaderSource) Materialize(_ context.Context, dir string) (string, int64, error) {
	dst := filepath.Join(dir, s.name)
	size, err := saveCapped(s.reader, dst, s.maxBytes)
	if err != nil {
		return "", 0, err
	}
	return dst, size, nil
}

// HTTPSource downloads a remote URL into the working directory.
type HTTPSource struct {
	client   *http.Client
	url      string
	maxBytes int64
}

// NewHTTPSource builds a Source around a remote URL. A nil client gets
// a default with DefaultHTTPTimeout.
func NewHTTPSource(client *http.Client, rawURL string, maxBytes int64) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPSource{client: client, url: rawURL, maxBytes: maxBytes}
}

func (s *HTTPSource) Name() string {
	parsed, err := url.Parse(s.url)
	if err != nil || path.Base(parsed.Path) == "/" || path.Base(parsed.Path) == "." {
		return "download"
	}
	return sourceFileName(path.Base(parsed.Path))
}

func (s *HTTPSource) Materialize(ctx context.Context, dir string) (string, int64, error) {
	parsed, err := url.Parse(s.url)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", 0, services.Wrap(services.ErrValidation, "fetch", "parse url", "source URL must be http or https", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", 0, services.Wrap(services.ErrFetch, "fetch", "build request", "invalid source URL", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, services.Wrap(services.ErrFetch, "fetch", "download source", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, services.Wrap(services.ErrFetch, "fetch", "download source",
			fmt.Sprintf("server returned %s", resp.Status), nil)
	}
	if resp.ContentLength > 0 {
		if err := checkSize(resp.ContentLength, s.maxBytes); err != nil {
			return "", 0, err
		}
	}
	if err := checkMediaType(resp.Header.Get("Content-Type"), s.Name()); err != nil {
		return "", 0, err
	}

	dst := filepath.Join(dir, s.Name())
	size, err := saveCapped(resp.Body, dst, s.maxBytes)
	if err != nil {
		return "", 0, err
	}
	return dst, size, nil
}

// checkMediaType rejects responses that are clearly not audio. An
// octet-stream or missing content type is allowed when the filename
// carries a known audio extension.
func checkMediaType(contentType, name string) error {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.HasPrefix(mediaType, "audio/"), strings.HasPrefix(mediaType, "video/"):
		return nil
	case mediaType == "", mediaType == "application/octet-stream", mediaType == "binary/octet-stream":
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := audioExtensions[ext]; ok {
			return nil
		}
		return services.Wrap(services.ErrValidation, "fetch", "check media type",
			fmt.Sprintf("cannot tell whether %q is audio", name), nil)
	default:
		return services.Wrap(services.ErrValidation, "fetch", "check media type",
			fmt.Sprintf("unsupported content type %q", mediaType), nil)
	}
}

// saveCapped streams r to dst, failing once more than maxBytes have
// been read. The partial file is removed on failure.
func saveCapped(r io.Reader, dst string, maxBytes int64) (int64, error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, services.Wrap(services.ErrFetch, "fetch", "save source", "cannot create staging file", err)
	}

	reader := r
	if maxBytes > 0 {
		reader = io.LimitReader(r, maxBytes+1)
	}
	written, err := io.Copy(out, reader)
	closeErr := out.Close()
	switch {
	case err != nil:
		_ = os.Remove(dst)
		return 0, services.Wrap(services.ErrFetch, "fetch", "save source", "copy failed", err)
	case closeErr != nil:
		_ = os.Remove(dst)
		return 0, services.Wrap(services.ErrFetch, "fetch", "save source", "flush failed", closeErr)
	case maxBytes > 0 && written > maxBytes:
		_ = os.Remove(dst)
		return 0, sizeError(maxBytes)
	}
	return written, nil
}

func checkSize(size, maxBytes int64) error {
	if maxBytes > 0 && size > maxBytes {
		return sizeError(maxBytes)
	}
	return nil
}

func sizeError(maxBytes int64) error {
	return services.Wrap(services.ErrValidation, "fetch", "check size",
		fmt.Sprintf("source exceeds maximum size of %d MiB", maxBytes/(1024*1024)), nil)
}

func sourceFileName(name string) string {
	cleaned := textutil.SanitizeFileName(name)
	if cleaned == "" {
		return "source"
	}
	return cleaned
}
