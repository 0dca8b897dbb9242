package cloudflare

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	appconfig "gridpick_backend/pkg/config"
)

// PutObjectAPI is the slice of the S3 client the archive needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func NewR2Client(ctx context.Context, cfg appconfig.R2Config) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		o.UsePathStyle = true
	})

	return client, nil
}

// Archive stores a copy of each verified webhook body in an R2 bucket.
type Archive struct {
	client PutObjectAPI
	bucket string
	now    func() time.Time
}

func NewArchive(client PutObjectAPI, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket, now: time.Now}
}

// ObjectKey lays payloads out by day and event type, e.g.
// webhooks/stripe/2024/05/01/checkout-session-completed/evt_123-<uuid>.json.
func ObjectKey(at time.Time, eventID, eventType string) string {
	name := fmt.Sprintf("%s-%s.json", slug.Make(eventID), uuid.New().String())
	return path.Join("webhooks", "stripe", at.UTC().Format("2006/01/02"), slug.Make(eventType), name)
}

func (a *Archive) Archive(ctx context.Context, eventID, eventType string, payload []byte) (string, error) {
	key := ObjectKey(a.now(), eventID, eventType)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"stripe-event-id":   eventID,
			"stripe-event-type": eventType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("could not upload webhook payload to R2: %w", err)
	}

	return key, nil
}
