package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/Tarcisio20/meu-gerente/internal/server/metrics"
	auditrepo "github.com/Tarcisio20/meu-gerente/internal/server/repositories/audit"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	archivePrefix    = "audit/"
	defaultBatchSize = 500
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectStore is the part of the S3 API the archiver needs.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// NewS3Client builds a client for AWS or an S3-compatible store such as
// MinIO. Static credentials are used when given.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Archiver copies audit rows into the bucket as JSON-lines objects named
// audit/YYYY/MM/DD/<firstID>-<lastID>.jsonl. It only reads the table.
type Archiver struct {
	repo      auditrepo.Repository
	store     ObjectStore
	bucket    string
	interval  time.Duration
	batchSize int
	log       logging.Logger

	lastID atomic.Int64
}

func NewArchiver(repo auditrepo.Repository, store ObjectStore, bucket string, interval time.Duration, log logging.Logger) *Archiver {
	return &Archiver{
		repo:      repo,
		store:     store,
		bucket:    bucket,
		interval:  interval,
		batchSize: defaultBatchSize,
		log:       log.With("module", "audit-archiver"),
	}
}

// LastID is the highest audit id known to be archived.
func (a *Archiver) LastID() int64 {
	return a.lastID.Load()
}

// Resume sets the watermark from the object names already in the bucket.
func (a *Archiver) Resume(ctx context.Context) error {
	var (
		token   *string
		highest int64
	)
	for {
		out, err := a.store.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(archivePrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("list archive: %w", err)
		}
		for _, obj := range out.Contents {
			if last, ok := lastIDFromKey(aws.ToString(obj.Key)); ok && last > highest {
				highest = last
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			if highest > a.lastID.Load() {
				a.lastID.Store(highest)
			}
			return nil
		}
		token = out.NextContinuationToken
	}
}

// ArchiveOnce exports everything newer than the watermark and returns the
// number of entries written.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		records, err := a.repo.ListSince(ctx, a.lastID.Load(), a.batchSize)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			return total, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return total, fmt.Errorf("encode audit record %d: %w", records[i].ID, err)
			}
		}

		first, last := records[0], records[len(records)-1]
		key := fmt.Sprintf("%s%s/%d-%d.jsonl", archivePrefix, first.CreatedAt.UTC().Format("2006/01/02"), first.ID, last.ID)

		_, err = a.store.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return total, fmt.Errorf("put %s: %w", key, err)
		}

		a.lastID.Store(last.ID)
		total += len(records)
		metrics.AuditArchivedTotal.Add(float64(len(records)))

		if len(records) < a.batchSize {
			return total, nil
		}
	}
}

// Run resumes from the bucket and archives on every tick until ctx ends.
func (a *Archiver) Run(ctx context.Context) {
	if err := a.Resume(ctx); err != nil {
		a.log.Warn(ctx, "archive resume failed, starting from zero", "error", err)
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.ArchiveOnce(ctx)
			if err != nil {
				a.log.Error(ctx, "audit archive failed", "error", err, "last_id", a.LastID())
				continue
			}
			if n > 0 {
				a.log.Info(ctx, "audit archived", "entries", n, "last_id", a.LastID())
			}
		}
	}
}

func lastIDFromKey(key string) (int64, bool) {
	name := strings.TrimSuffix(path.Base(key), ".jsonl")
	_, lastPart, ok := strings.Cut(name, "-")
	if !ok {
		return 0, false
	}
	last, err := strconv.ParseInt(lastPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return last, true
}
