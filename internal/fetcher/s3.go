package fetcher

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/resilience"
)

// s3API is the part of the S3 client the fetcher uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads objects named by s3://bucket/key URLs. Credentials and
// region come from the default AWS chain; Options.Region overrides the region.
type S3Fetcher struct {
	opts  Options
	retry resilience.RetryConfig

	mu     sync.Mutex
	client s3API
}

// NewS3Fetcher creates an S3Fetcher. The client is built on first use.
func NewS3Fetcher(opts Options) *S3Fetcher {
	retry := resilience.DefaultRetryConfig().WithAttempts(opts.MaxRetries)
	retry.OnRetry = resilience.RetryLogger("fetcher", "s3")
	return &S3Fetcher{opts: opts, retry: retry}
}

func (f *S3Fetcher) api(ctx context.Context) (s3API, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if f.opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(f.opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: load aws config")
	}
	f.client = s3.NewFromConfig(cfg)
	return f.client, nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "fetcher: parse s3 url")
	}
	if u.Scheme != "s3" {
		return "", "", eris.Errorf("fetcher: expected s3 scheme, got %q", u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", eris.Errorf("fetcher: s3 url %q needs a bucket and a key", rawURL)
	}
	return u.Host, key, nil
}

// Download returns the body of the object at s3URL.
func (f *S3Fetcher) Download(ctx context.Context, s3URL string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(s3URL)
	if err != nil {
		return nil, err
	}
	client, err := f.api(ctx)
	if err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (io.ReadCloser, error) {
		zap.L().Debug("fetcher: s3 get", zap.String("bucket", bucket), zap.String("key", key))
		out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: s3 get %s/%s", bucket, key)
		}
		return out.Body, nil
	})
}

// DownloadToFile saves s3URL to path.
func (f *S3Fetcher) DownloadToFile(ctx context.Context, s3URL, path string) (int64, error) {
	rc, err := f.Download(ctx, s3URL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	return saveAtomic(rc, path)
}
