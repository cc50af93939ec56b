package research

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ReportExporter persists a finished research result.
type ReportExporter interface {
	Export(ctx context.Context, result *Result) (string, error)
}

// FileExporter writes the report to <topic>_report.md in a directory.
type FileExporter struct {
	dir string
}

// NewFileExporter writes reports into dir, defaulting to the working
// directory.
func NewFileExporter(dir string) *FileExporter {
	if dir == "" {
		dir = "."
	}
	return &FileExporter{dir: dir}
}

// Export writes the report and returns the file path.
func (e *FileExporter) Export(_ context.Context, result *Result) (string, error) {
	path := filepath.Join(e.dir, reportFilename(result.Topic))
	if err := os.WriteFile(path, []byte(result.Report), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// S3Exporter uploads the report to an S3 bucket.
type S3Exporter struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Exporter uploads reports under prefix in bucket using the given
// client.
func NewS3Exporter(client *s3.Client, bucket, prefix string) *S3Exporter {
	return &S3Exporter{client: client, bucket: bucket, prefix: prefix}
}

// Export uploads the report and returns its object key.
func (e *S3Exporter) Export(ctx context.Context, result *Result) (string, error) {
	key := reportFilename(result.Topic)
	if e.prefix != "" {
		key = strings.TrimSuffix(e.prefix, "/") + "/" + key
	}
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(result.Report),
		ContentType: aws.String("text/markdown"),
	})
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	return key, nil
}

func reportFilename(topic string) string {
	name := strings.ReplaceAll(strings.TrimSpace(topic), " ", "_")
	if name == "" {
		name = "research"
	}
	return name + "_report.md"
}
