// Package export writes run artifacts (tables, metrics, reports) under the
// data directory and, when a bucket is configured, uploads them to S3.
package export

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/config"
)

// Artifact names.
const (
	CleanedReviews       = "cleaned_reviews.csv"
	TrainingLabelsCSV    = "training_llm_labels.csv"
	TrainingLabelsJSONL  = "training_llm_labels.jsonl"
	ValidationPrediction = "validation_predictions.csv"
	ValidationMetrics    = "validation_metrics.json"
	Report               = "report.md"
)

// Putter is the part of the S3 client the exporter uses.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes artifacts for runs.
type Exporter struct {
	dir    string
	bucket string
	prefix string
	client Putter
}

// New creates an exporter rooted at dataDir. When cfg names a bucket the AWS
// default credential chain is loaded and artifacts are also uploaded.
func New(ctx context.Context, cfg config.Export, dataDir string) (*Exporter, error) {
	if cfg.S3Bucket == "" {
		return NewWithClient(dataDir, "", "", nil), nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "loading AWS config")
	}

	zap.L().Info("S3 export enabled", zap.String("bucket", cfg.S3Bucket), zap.String("prefix", cfg.S3Prefix))
	return NewWithClient(dataDir, cfg.S3Bucket, cfg.S3Prefix, s3.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates an exporter with an explicit S3 client. A nil
// client or empty bucket disables uploads.
func NewWithClient(dataDir, bucket, prefix string, client Putter) *Exporter {
	e := &Exporter{dir: dataDir, bucket: bucket, prefix: strings.Trim(prefix, "/")}
	if bucket != "" && client != nil {
		e.client = client
	}
	return e
}

// RunDir is the local directory of a run's artifacts.
func (e *Exporter) RunDir(runID string) string {
	return filepath.Join(e.dir, "runs", runID)
}

// Key is the S3 object key of an artifact.
func (e *Exporter) Key(runID, name string) string {
	if e.prefix == "" {
		return path.Join(runID, name)
	}
	return path.Join(e.prefix, runID, name)
}

// Uploads reports whether artifacts are also sent to S3.
func (e *Exporter) Uploads() bool {
	return e.client != nil
}

// Write renders an artifact with fn, stores it in the run directory and
// uploads it when S3 export is enabled. It returns the local path.
func (e *Exporter) Write(ctx context.Context, runID, name string, fn func(io.Writer) error) (string, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return "", eris.Wrapf(err, "rendering %s", name)
	}

	dir := e.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "creating %s", dir)
	}
	local := filepath.Join(dir, name)
	if err := os.WriteFile(local, buf.Bytes(), 0o644); err != nil {
		return "", eris.Wrapf(err, "writing %s", local)
	}

	if e.client != nil {
		key := e.Key(runID, name)
		_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(e.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String(contentType(name)),
		})
		if err != nil {
			return local, eris.Wrapf(err, "uploading s3://%s/%s", e.bucket, key)
		}
		zap.L().Debug("Uploaded artifact", zap.String("bucket", e.bucket), zap.String("key", key))
	}
	return local, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".md":
		return "text/markdown; charset=utf-8"
	}
	return "application/octet-stream"
}
