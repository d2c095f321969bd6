// Package archive uploads a JSON incident report to object storage whenever
// a vehicle escalates. The archive is an audit trail, never a dependency of
// the hot path: uploads run asynchronously and a failure only increments a
// counter.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/guardian-iov/guardian/internal/triage"
	"github.com/guardian-iov/guardian/pkg/log"
	"github.com/guardian-iov/guardian/pkg/options"
)

// Report is the archived record of one escalation.
type Report struct {
	VIN         string                `json:"vin"`
	From        triage.IncidentStatus `json:"from"`
	Trigger     triage.Trigger        `json:"trigger"`
	Reason      string                `json:"reason"`
	EscalatedAt time.Time             `json:"escalatedAt"`
}

// Archiver stores escalation reports in an S3-compatible bucket.
type Archiver struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
	metrics *triage.Metrics
	logger  log.Logger
}

// New builds an archiver from the S3 options. The caller decides whether to
// archive at all by checking opts.Endpoint before calling.
func New(opts *options.S3Options, metrics *triage.Metrics, logger log.Logger) (*Archiver, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client for %s: %w", opts.Endpoint, err)
	}

	return &Archiver{
		client:  client,
		bucket:  opts.BucketName,
		timeout: 30 * time.Second,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet. Called once at
// startup so upload failures later are real failures, not missing setup.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("Created incident archive bucket", "bucket", a.bucket)
	return nil
}

// Put uploads one report under incidents/{vin}/{escalatedAt}.json.
func (a *Archiver) Put(ctx context.Context, report *Report) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report for %s: %w", report.VIN, err)
	}

	key := fmt.Sprintf("incidents/%s/%s.json", report.VIN, report.EscalatedAt.UTC().Format(time.RFC3339Nano))
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload report %s: %w", key, err)
	}

	a.logger.Debug("Archived incident report", "bucket", a.bucket, "key", key)
	return nil
}

// Hook adapts the archiver into an escalation hook. The upload happens in
// its own goroutine with a detached context, so a slow object store cannot
// stall telemetry processing.
func (a *Archiver) Hook() triage.EscalationHook {
	return func(_ context.Context, tr *triage.Transition) {
		report := &Report{
			VIN:         tr.VIN,
			From:        tr.From,
			Trigger:     tr.Trigger,
			Reason:      tr.Reason,
			EscalatedAt: tr.Record.LastUpdated,
		}
		go func() {
			if err := a.Put(context.Background(), report); err != nil {
				if a.metrics != nil {
					a.metrics.ArchiveFailuresTotal.Inc()
				}
				a.logger.Error(err, "Incident report archive failed", "vin", report.VIN)
			}
		}()
	}
}
