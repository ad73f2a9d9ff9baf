/*
Copyright 2024 Paychain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package backups

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/paychain-labs/paychain/chain"
	"github.com/paychain-labs/paychain/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Uploader is the subset of s3manager.Uploader used for backups.
type Uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// Export is the on-disk format of a chain backup.
type Export struct {
	ExportedAt time.Time     `json:"exported_at"`
	TakenAt    time.Time     `json:"snapshot_taken_at"`
	Length     int           `json:"length"`
	Blocks     []chain.Block `json:"blocks"`
}

// BackupManager writes chain snapshots to BackupDir and optionally ships them to S3.
type BackupManager struct {
	Config   *config.Configuration
	S3Client Uploader
	now      func() time.Time
}

func NewBackupManager(cfg *config.Configuration) *BackupManager {
	return &BackupManager{Config: cfg, now: time.Now}
}

func (bm *BackupManager) clock() time.Time {
	if bm.now == nil {
		return time.Now()
	}
	return bm.now()
}

// BackupToDisk writes snap under <backup_dir>/<YYYY-MM-DD>/ and returns the file path.
func (bm *BackupManager) BackupToDisk(ctx context.Context, snap *chain.Snapshot) (string, error) {
	if bm.Config == nil {
		return "", errors.New("backup manager has no configuration")
	}
	if snap == nil {
		return "", errors.New("no chain snapshot to back up")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := bm.clock().UTC()
	dir := filepath.Join(bm.Config.BackupDir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create backup directory")
	}

	data, err := json.MarshalIndent(Export{
		ExportedAt: now,
		TakenAt:    snap.TakenAt(),
		Length:     snap.Len(),
		Blocks:     snap.Blocks(),
	}, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode chain backup")
	}

	path := filepath.Join(dir, fmt.Sprintf("chain-%s-backup.json", now.Format("150405")))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", errors.Wrap(err, "write chain backup")
	}

	logrus.WithFields(logrus.Fields{"path": path, "blocks": snap.Len()}).Info("chain backup written")
	return path, nil
}

// BackupToS3 writes a local backup, zips the day's backup directory and uploads the
// archive. The returned string is the object key.
func (bm *BackupManager) BackupToS3(ctx context.Context, snap *chain.Snapshot) (string, error) {
	path, err := bm.BackupToDisk(ctx, snap)
	if err != nil {
		return "", err
	}

	uploader, err := bm.uploader()
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	zipPath := dir + ".zip"
	if err := zipDir(dir, zipPath); err != nil {
		return "", errors.Wrap(err, "zip backup directory")
	}
	defer os.Remove(zipPath)

	f, err := os.Open(zipPath)
	if err != nil {
		return "", errors.Wrap(err, "open backup archive")
	}
	defer f.Close()

	key := fmt.Sprintf("%s/%s", bm.Config.ProjectName, filepath.Base(zipPath))
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bm.Config.S3BucketName),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", errors.Wrap(err, "upload backup to s3")
	}

	logrus.WithField("key", key).Info("chain backup uploaded to s3")
	return key, nil
}

func (bm *BackupManager) uploader() (Uploader, error) {
	if bm.S3Client != nil {
		return bm.S3Client, nil
	}
	if bm.Config.S3BucketName == "" {
		return nil, errors.New("s3 bucket is not configured")
	}

	awsCfg := &aws.Config{
		Region:      aws.String(bm.Config.S3Region),
		Credentials: credentials.NewStaticCredentials(bm.Config.AwsAccessKeyId, bm.Config.AwsSecretAccessKey, ""),
	}
	if bm.Config.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(bm.Config.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	bm.S3Client = s3manager.NewUploader(sess)
	return bm.S3Client, nil
}

func zipDir(srcDir, destZip string) error {
	zipFile, err := os.Create(destZip)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	writer := zip.NewWriter(zipFile)
	err = filepath.Walk(srcDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(srcDir, filePath)
		if err != nil {
			return err
		}
		w, err := writer.Create(relPath)
		if err != nil {
			return err
		}

		src, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
