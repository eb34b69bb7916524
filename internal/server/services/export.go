package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
	sc "github.com/simonexmachina/the-work/internal/server/config"
	"github.com/simonexmachina/the-work/internal/timex"
)

const exportURLValidity = 15 * time.Minute

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newObjectPutter = func(c *s3.Client) objectPutter {
		return c
	}

	newS3PresignClient = func(c *s3.Client) getPresigner {
		return s3.NewPresignClient(c)
	}
)

// exportDocument is the file a user downloads.
type exportDocument struct {
	OwnerID    string             `json:"ownerId"`
	ExportedAt string             `json:"exportedAt"`
	Worksheets []models.Worksheet `json:"worksheets"`
}

// ExportService writes a JSON dump of a user's live worksheets to object
// storage and hands back a short-lived download link.
type ExportService struct {
	worksheets *WorksheetService
	config     *sc.Config
	logger     logging.Logger
	now        func() time.Time
}

func NewExportService(ws *WorksheetService, cfg *sc.Config, l logging.Logger) *ExportService {
	return &ExportService{
		worksheets: ws,
		config:     cfg,
		logger:     l.With("module", "export_service"),
		now:        time.Now,
	}
}

func (s *ExportService) clients(ctx context.Context) (objectPutter, getPresigner, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})
	return newObjectPutter(client), newS3PresignClient(client), nil
}

func exportKey(ownerID string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%d/%02d/%02d/%s.json", ownerID, at.Year(), at.Month(), at.Day(), uuid.New())
}

// Export uploads the owner's live worksheets and returns a presigned GET URL.
func (s *ExportService) Export(ctx context.Context, ownerID string) (string, error) {
	list, err := s.worksheets.FetchAll(ctx, ownerID, false)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	body, err := json.MarshalIndent(exportDocument{
		OwnerID:    ownerID,
		ExportedAt: timex.FormatTimestamp(now),
		Worksheets: list,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	putter, presigner, err := s.clients(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket
	key := exportKey(ownerID, now)
	if _, err := putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}

	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(exportURLValidity))
	if err != nil {
		return "", fmt.Errorf("presign export: %w", err)
	}

	s.logger.Info(ctx, "export created", "owner", ownerID, "key", key, "worksheets", len(list))
	return req.URL, nil
}
