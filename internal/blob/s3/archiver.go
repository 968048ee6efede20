package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// HistoryArchiver uploads snapshots of the on-disk trade history file to
// object storage. The local file remains the source of truth; the archive is
// an off-host backup taken at shutdown.
type HistoryArchiver struct {
	client *Client
	path   string
	logger *slog.Logger
}

// NewHistoryArchiver creates an archiver for the given local history file.
func NewHistoryArchiver(client *Client, path string, logger *slog.Logger) *HistoryArchiver {
	return &HistoryArchiver{
		client: client,
		path:   path,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Archive uploads the current history file to
// history/trade_history-<UTC timestamp>.csv and returns the object key. A
// missing or empty history file archives nothing and returns "".
func (a *HistoryArchiver) Archive(ctx context.Context) (string, error) {
	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: read history file: %w", err)
	}
	if len(data) == 0 {
		return "", nil
	}

	key := fmt.Sprintf("history/trade_history-%s.csv", time.Now().UTC().Format("20060102-150405"))
	_, err = a.client.S3().PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.Bucket()),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: upload history: %w", err)
	}

	a.logger.InfoContext(ctx, "trade history archived",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)
	return key, nil
}
