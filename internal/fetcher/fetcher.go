// Package fetcher downloads the daily design export over HTTP or FTP and
// unpacks it for the layer loader.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote files.
type Fetcher interface {
	// Download returns the body of url. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
	// DownloadToFile saves url to path and returns the bytes written.
	DownloadToFile(ctx context.Context, url, path string) (int64, error)
}

// Options configures both fetchers.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RatePerSec limits HTTP requests. 0 means unlimited.
	RatePerSec float64
	// Region overrides the AWS region for s3 URLs.
	Region string
}

// ForURL returns the fetcher for rawURL's scheme.
func ForURL(rawURL string, opts Options) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %q", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(opts), nil
	case "ftp":
		return NewFTPFetcher(opts), nil
	case "s3":
		return NewS3Fetcher(opts), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// saveAtomic copies r to path through a temp file in the same directory.
func saveAtomic(r io.Reader, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "fetcher: create directory")
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrap(err, "fetcher: rename file")
	}
	return n, nil
}
