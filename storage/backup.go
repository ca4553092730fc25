package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"lagflode/config"
)

const backupPrefix = "db-backups/"

// BackupClient umfasst die S3-Operationen für Sicherung und Rotation.
type BackupClient interface {
	ObjectPutter
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Dumper liefert einen unkomprimierten SQL-Dump.
type Dumper func(ctx context.Context) (io.ReadCloser, func() error, error)

// PgDump ruft pg_dump mit den Zugangsdaten aus cfg auf.
func PgDump(cfg *config.Config) Dumper {
	return func(ctx context.Context) (io.ReadCloser, func() error, error) {
		cmd := exec.CommandContext(ctx, "pg_dump",
			"-h", cfg.DBHost,
			"-p", fmt.Sprint(cfg.DBPort),
			"-U", cfg.DBUser,
			"-d", cfg.DBName,
			"-w", // Passwort über PGPASSWORD
		)
		cmd.Env = append(os.Environ(), "PGPASSWORD="+cfg.DBPassword)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, err
		}
		return stdout, cmd.Wait, nil
	}
}

// BackupKey: Zeitstempel in UTC, lexikografisch sortierbar.
func BackupKey(at time.Time) string {
	return backupPrefix + "backup-" + at.UTC().Format("2006-01-02T15-04-05Z") + ".sql.gz"
}

// Backup erstellt einen gzip-Dump, lädt ihn hoch und rotiert alte Sicherungen.
func Backup(ctx context.Context, client BackupClient, bucket string, keep int, dump Dumper, at time.Time, logger *zap.Logger) (string, error) {
	out, wait, err := dump(ctx)
	if err != nil {
		return "", fmt.Errorf("dump starten: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, copyErr := io.Copy(zw, out)
	out.Close()
	if err := wait(); err != nil {
		return "", fmt.Errorf("dump: %w", err)
	}
	if copyErr != nil {
		return "", copyErr
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	key, err := UploadFile(ctx, client, bucket, BackupKey(at), buf.Bytes(), "application/gzip")
	if err != nil {
		return "", err
	}
	logger.Info("Backup hochgeladen", zap.String("bucket", bucket), zap.String("key", key), zap.Int("bytes", buf.Len()))

	if err := RotateBackups(ctx, client, bucket, keep, logger); err != nil {
		return key, fmt.Errorf("rotation: %w", err)
	}
	return key, nil
}

// RotateBackups behält die keep neuesten Sicherungen.
func RotateBackups(ctx context.Context, client BackupClient, bucket string, keep int, logger *zap.Logger) error {
	output, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(backupPrefix),
	})
	if err != nil {
		return err
	}
	objs := output.Contents
	if len(objs) <= keep {
		logger.Debug("Keine Rotation nötig", zap.Int("backups", len(objs)), zap.Int("keep", keep))
		return nil
	}

	sort.Slice(objs, func(i, j int) bool {
		ti, tj := aws.ToTime(objs[i].LastModified), aws.ToTime(objs[j].LastModified)
		if ti.Equal(tj) {
			return strings.Compare(aws.ToString(objs[i].Key), aws.ToString(objs[j].Key)) > 0
		}
		return ti.After(tj)
	})

	for _, obj := range objs[keep:] {
		logger.Info("Lösche altes Backup", zap.String("key", aws.ToString(obj.Key)))
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    obj.Key,
		})
		if err != nil {
			logger.Warn("Löschen fehlgeschlagen", zap.String("key", aws.ToString(obj.Key)), zap.Error(err))
		}
	}
	return nil
}
