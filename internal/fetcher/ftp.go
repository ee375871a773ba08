package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/resilience"
)

// FTPFetcher downloads files over FTP. Credentials come from the URL's
// userinfo; without them it logs in anonymously.
type FTPFetcher struct {
	opts  Options
	retry resilience.RetryConfig
}

// NewFTPFetcher creates an FTPFetcher.
func NewFTPFetcher(opts Options) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	retry := resilience.DefaultRetryConfig().WithAttempts(opts.MaxRetries)
	retry.OnRetry = resilience.RetryLogger("fetcher", "ftp")
	return &FTPFetcher{opts: opts, retry: retry}
}

type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("fetcher: empty path in ftp url")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, err := net.SplitHostPort(t.host); err != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// ftpReader closes the transfer and the control connection together.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *ftpReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetcher: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetcher: quit ftp")
	}
	return nil
}

// Download retrieves the file at ftpURL. Dial, login and RETR are retried
// on transient failures.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	t, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (io.ReadCloser, error) {
		zap.L().Debug("fetcher: ftp connect", zap.String("host", t.host), zap.String("path", t.path))
		conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: ftp dial")
		}
		if err := conn.Login(t.user, t.password); err != nil {
			_ = conn.Quit()
			return nil, eris.Wrap(err, "fetcher: ftp login")
		}
		resp, err := conn.Retr(t.path)
		if err != nil {
			_ = conn.Quit()
			return nil, eris.Wrap(err, "fetcher: ftp retrieve")
		}
		return &ftpReader{resp: resp, conn: conn}, nil
	})
}

// DownloadToFile saves ftpURL to path.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL, path string) (int64, error) {
	rc, err := f.Download(ctx, ftpURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	return saveAtomic(rc, path)
}
