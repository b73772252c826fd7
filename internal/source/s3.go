package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"
)

// S3Config holds connection settings for the S3 provider.
type S3Config struct {
	Region          string
	Profile         string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool

	// FetchConcurrency bounds concurrent GetObject calls. Defaults to 8.
	FetchConcurrency int
}

// S3API is the subset of the S3 client used by the provider.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Provider lists units stored under an S3 prefix. Repository IDs have the
// form s3://bucket/prefix.
type S3Provider struct {
	client      S3API
	concurrency int
	logger      *slog.Logger
}

// NewS3Provider loads AWS configuration and builds an S3 client.
func NewS3Provider(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Provider, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.UsePathStyle {
		opts = append(opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}

	return NewS3ProviderWithClient(s3.NewFromConfig(awsCfg, opts...), cfg.FetchConcurrency, logger), nil
}

// NewS3ProviderWithClient wraps an existing client.
func NewS3ProviderWithClient(client S3API, concurrency int, logger *slog.Logger) *S3Provider {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Provider{
		client:      client,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "s3_source")),
	}
}

func loadAWSConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	// Custom endpoints (MinIO and friends) still need a signing region.
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	return awsCfg, nil
}

// ParseS3Location splits s3://bucket/prefix. The returned prefix is empty or
// ends with a slash.
func ParseS3Location(repositoryID string) (bucket, prefix string, err error) {
	u, err := url.Parse(repositoryID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnsupportedScheme, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: expected s3://bucket/prefix, got %q", ErrUnsupportedScheme, repositoryID)
	}
	prefix = strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

type s3Object struct {
	key      string
	unitKey  string
	category string
	size     int64
}

// ListUnits lists the prefix, then fetches matching objects concurrently.
func (p *S3Provider) ListUnits(
	ctx context.Context,
	repositoryID string,
	filter Filter,
) ([]Unit, error) {
	matcher, err := filter.Compile()
	if err != nil {
		return nil, err
	}
	bucket, prefix, err := ParseS3Location(repositoryID)
	if err != nil {
		return nil, err
	}

	var objects []s3Object
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, p.wrapError(repositoryID, "list", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			unitKey := strings.TrimPrefix(key, prefix)
			if unitKey == "" || strings.HasSuffix(unitKey, "/") {
				continue
			}
			category, ok := matcher.Match(unitKey)
			if !ok {
				continue
			}
			size := aws.ToInt64(obj.Size)
			if !matcher.AllowSize(size) {
				p.logger.Debug("skipping oversized unit",
					slog.String("unit_key", unitKey),
					slog.Int64("size", size))
				continue
			}
			objects = append(objects, s3Object{key: key, unitKey: unitKey, category: category, size: size})
		}
	}

	var (
		mu    sync.Mutex
		units = make([]Unit, 0, len(objects))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, obj := range objects {
		g.Go(func() error {
			content, err := p.fetch(gctx, bucket, obj.key)
			if err != nil {
				return p.wrapError(repositoryID, "get "+obj.key, err)
			}
			if !utf8.Valid(content) {
				p.logger.Debug("skipping non-utf8 unit", slog.String("unit_key", obj.unitKey))
				return nil
			}
			mu.Lock()
			units = append(units, Unit{
				Key:      obj.unitKey,
				Category: obj.category,
				Content:  string(content),
				Size:     obj.size,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Key < units[j].Key })
	p.logger.Debug("listed units",
		slog.String("repository_id", repositoryID),
		slog.Int("count", len(units)))
	return units, nil
}

func (p *S3Provider) fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (p *S3Provider) wrapError(repositoryID, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		p.logger.Warn("s3 request failed",
			slog.String("op", op),
			slog.String("code", apiErr.ErrorCode()),
			slog.String("repository_id", repositoryID))
	}
	return unavailable(repositoryID, op, err)
}
