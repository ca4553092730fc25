package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBucket struct {
	fakePutter
	objects []types.Object
	deleted []string
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return &s3.ListObjectsV2Output{Contents: f.objects}, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func object(key string, at time.Time) types.Object {
	return types.Object{Key: aws.String(key), LastModified: aws.Time(at)}
}

func staticDump(sql string, waitErr error) Dumper {
	return func(context.Context) (io.ReadCloser, func() error, error) {
		return io.NopCloser(strings.NewReader(sql)), func() error { return waitErr }, nil
	}
}

func TestBackupKey(t *testing.T) {
	at := time.Date(2025, 3, 9, 4, 5, 6, 0, time.UTC)
	assert.Equal(t, "db-backups/backup-2025-03-09T04-05-06Z.sql.gz", BackupKey(at))
}

func TestBackupUploadsGzipDump(t *testing.T) {
	b := &fakeBucket{}
	at := time.Date(2025, 3, 9, 4, 0, 0, 0, time.UTC)

	key, err := Backup(context.Background(), b, "sicherung", 4, staticDump("CREATE TABLE legal_documents();", nil), at, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, BackupKey(at), key)
	assert.Equal(t, "application/gzip", b.contentType)

	zr, err := gzip.NewReader(bytes.NewReader(b.body))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE legal_documents();", string(plain))
	assert.Empty(t, b.deleted)
}

func TestBackupDumpFailure(t *testing.T) {
	b := &fakeBucket{}
	_, err := Backup(context.Background(), b, "sicherung", 4, staticDump("", errors.New("exit status 1")), time.Now(), zap.NewNop())
	assert.ErrorContains(t, err, "exit status 1")
	assert.Empty(t, b.key)
}

func TestRotateBackupsKeepsNewest(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := &fakeBucket{objects: []types.Object{
		object("db-backups/a", base),
		object("db-backups/d", base.Add(72*time.Hour)),
		object("db-backups/b", base.Add(24*time.Hour)),
		object("db-backups/c", base.Add(48*time.Hour)),
	}}
	require.NoError(t, RotateBackups(context.Background(), b, "sicherung", 2, zap.NewNop()))
	assert.Equal(t, []string{"db-backups/b", "db-backups/a"}, b.deleted)

	b = &fakeBucket{objects: b.objects[:1]}
	require.NoError(t, RotateBackups(context.Background(), b, "sicherung", 2, zap.NewNop()))
	assert.Empty(t, b.deleted)
}
