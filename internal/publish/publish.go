// Package publish uploads the aggregated event feed to S3-compatible object
// storage.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/eventsync/internal/model"
)

var ErrNotConfigured = errors.New("publish: bucket or credentials missing")

// s3Client is the subset of *s3.Client used here.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket    string
	Key       string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Feed is the published document.
type Feed struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Count       int                    `json:"count"`
	Events      []model.CanonicalEvent `json:"events"`
}

type Result struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Bytes  int    `json:"bytes"`
	Count  int    `json:"count"`
}

type Publisher struct {
	client s3Client
	bucket string
	key    string
	logger *slog.Logger
}

// New builds a Publisher backed by a real S3 client. Path-style addressing
// is used so MinIO and R2 style endpoints work.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newPublisher(s3.New(opts), cfg.Bucket, cfg.Key, logger), nil
}

func newPublisher(client s3Client, bucket, key string, logger *slog.Logger) *Publisher {
	if key == "" {
		key = "events.json"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, bucket: bucket, key: key, logger: logger}
}

// Publish uploads events as a Feed document, replacing the previous object.
func (p *Publisher) Publish(ctx context.Context, events []model.CanonicalEvent, generatedAt time.Time) (Result, error) {
	if events == nil {
		events = []model.CanonicalEvent{}
	}
	feed := Feed{GeneratedAt: generatedAt.UTC(), Count: len(events), Events: events}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(feed); err != nil {
		return Result{}, fmt.Errorf("encode feed: %w", err)
	}
	size := buf.Len()

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(p.key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(size)),
		ContentType:   aws.String("application/json"),
		CacheControl:  aws.String("public, max-age=300"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("upload feed to s3://%s/%s: %w", p.bucket, p.key, err)
	}

	p.logger.Info("feed published", "bucket", p.bucket, "key", p.key, "events", len(events), "bytes", size)
	return Result{Bucket: p.bucket, Key: p.key, Bytes: size, Count: len(events)}, nil
}
