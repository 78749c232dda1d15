package parser

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

	"github.com/dgallion1/docrag/internal/ragerr"
)

// Fetcher loads document bytes from a local path or an http(s) URL.
type Fetcher struct {
	HTTP     *http.Client
	MaxBytes int64
}

func NewFetcher(maxBytes int64) *Fetcher {
	return &Fetcher{
		HTTP:     &http.Client{Timeout: 60 * time.Second},
		MaxBytes: maxBytes,
	}
}

// IsURL reports whether source is an http or https URL.
func IsURL(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch returns the raw bytes and a filename whose extension selects the parser.
// Unreadable sources are ParseErrors.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, string, error) {
	op := "fetch " + source
	if IsURL(source) {
		data, name, err := f.fetchURL(ctx, source)
		if err != nil {
			return nil, "", ragerr.Parse(op, err)
		}
		return data, name, nil
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, "", ragerr.Parse(op, err)
	}
	defer file.Close()
	data, err := f.readLimited(file)
	if err != nil {
		return nil, "", ragerr.Parse(op, err)
	}
	return data, filepath.Base(source), nil
}

func (f *Fetcher) fetchURL(ctx context.Context, source string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, "", err
	}
	u, _ := url.Parse(source)
	return data, urlFilename(u, resp.Header.Get("Content-Type")), nil
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("document exceeds max size (%d bytes)", f.MaxBytes)
	}
	return data, nil
}

// urlFilename uses the last path segment, adding an extension from the content type
// when the segment has no supported one.
func urlFilename(u *url.URL, contentType string) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		name = u.Host
	}
	if IsSupportedExtension(name) {
		return name
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch strings.ToLower(mediaType) {
	case "application/pdf":
		return name + ".pdf"
	case "text/markdown":
		return name + ".md"
	case "text/plain":
		return name + ".txt"
	case "text/csv":
		return name + ".csv"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return name + ".docx"
	default:
		return name + ".html"
	}
}
