package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"lagflode/canonical"
	"lagflode/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter ist der Teil des S3-Clients, den das Archiv braucht.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpunkt.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// UploadFile lädt eine Datei hoch und gibt den Objektschlüssel zurück.
func UploadFile(ctx context.Context, client ObjectPutter, bucket, key string, data []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return key, nil
}

// SourcePDFKey: "SFS 2025:732" -> "sfs-pdfs/2025/SFS2025-732.pdf".
func SourcePDFKey(sfsNumber string) string {
	id := canonical.DocID(sfsNumber)
	year := "unknown"
	bare := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sfsNumber), "SFS"))
	if i := strings.Index(bare, ":"); i == 4 {
		year = bare[:4]
	}
	return fmt.Sprintf("sfs-pdfs/%s/%s.pdf", year, id)
}

// Archive legt Quell-PDFs im konfigurierten Bucket ab.
type Archive struct {
	client ObjectPutter
	bucket string
}

func NewArchive(client ObjectPutter, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// StoreSourcePDF speichert das PDF einer Ändringsförfattning und liefert den storagePath.
func (a *Archive) StoreSourcePDF(ctx context.Context, sfsNumber string, pdf []byte) (string, error) {
	return UploadFile(ctx, a.client, a.bucket, SourcePDFKey(sfsNumber), pdf, "application/pdf")
}
