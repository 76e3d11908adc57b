package cloud

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"haruki-asset-deobfuscator/config"
	"haruki-asset-deobfuscator/utils"
	harukiLogger "haruki-asset-deobfuscator/utils/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var logger = harukiLogger.NewLogger("HarukiCloudStorageUploader", "INFO", nil)

func SetLogLevel(level string) {
	logger.SetLevel(level)
}

// Uploader copies one local file to a path relative to the storage base.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string) error
}

// CommandUploader runs an external program per file. The arguments "src"
// and "dst" are replaced by the local and remote paths.
type CommandUploader struct {
	Program string
	Args    []string
}

func (u *CommandUploader) Upload(ctx context.Context, localPath, remotePath string) error {
	args := make([]string, len(u.Args))
	copy(args, u.Args)
	for i, arg := range args {
		if arg == "src" {
			args[i] = localPath
		} else if arg == "dst" {
			args[i] = remotePath
		}
	}
	logger.Debugf("Uploading %s to %s using command: %s %s", localPath, remotePath, u.Program, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, u.Program, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", u.Program, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

type S3Uploader struct {
	Client *s3.Client
	Bucket string
}

func NewS3Uploader(storage config.RemoteStorageConfig) (*S3Uploader, error) {
	if storage.Bucket == "" {
		return nil, errors.New("s3 storage requires a bucket")
	}
	opts := s3.Options{
		Region:       storage.Region,
		UsePathStyle: storage.UsePathStyle,
	}
	if storage.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(storage.AccessKeyID, storage.SecretAccessKey, "")
	}
	if storage.Endpoint != "" {
		opts.BaseEndpoint = aws.String(storage.Endpoint)
	}
	return &S3Uploader{Client: s3.New(opts), Bucket: storage.Bucket}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.Bucket),
		Key:           aws.String(strings.TrimPrefix(remotePath, "/")),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.Bucket, remotePath, err)
	}
	return nil
}

func NewUploader(storage config.RemoteStorageConfig) (Uploader, error) {
	t, err := utils.ParseRemoteStorageType(storage.Type)
	if err != nil {
		return nil, err
	}
	switch t {
	case utils.HarukiRemoteStorageTypeS3:
		return NewS3Uploader(storage)
	default:
		if storage.Program == "" {
			return nil, errors.New("command storage requires a program")
		}
		return &CommandUploader{Program: storage.Program, Args: storage.Args}, nil
	}
}

// remotePathFor maps a file under root to its path under base. S3 keys
// always use forward slashes.
func remotePathFor(storageType utils.HarukiRemoteStorageType, base, root, filePath string) (string, error) {
	rel, err := filepath.Rel(root, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path for %s: %w", filePath, err)
	}
	if storageType == utils.HarukiRemoteStorageTypeS3 {
		return path.Join(base, filepath.ToSlash(rel)), nil
	}
	return filepath.Join(base, rel), nil
}

// UploadToStorage uploads files under root with at most concurrency
// uploads in flight and returns the first failure.
func UploadToStorage(ctx context.Context, storage config.RemoteStorageConfig, files []string, root string, concurrency int, removeLocalAfterUpload bool) error {
	uploader, err := NewUploader(storage)
	if err != nil {
		return err
	}
	storageType, _ := utils.ParseRemoteStorageType(storage.Type)
	if concurrency <= 0 {
		concurrency = 1
	}
	semaphore := make(chan struct{}, concurrency)
	errChan := make(chan error, len(files))
	var wg sync.WaitGroup
	uploadFile := func(filePath string) {
		defer wg.Done()
		semaphore <- struct{}{}
		defer func() { <-semaphore }()
		remotePath, err := remotePathFor(storageType, storage.Base, root, filePath)
		if err != nil {
			errChan <- err
			return
		}
		if err := uploader.Upload(ctx, filePath, remotePath); err != nil {
			logger.Errorf("Failed to upload %s to %s", filePath, remotePath)
			errChan <- fmt.Errorf("failed to upload %s to %s: %w", filePath, remotePath, err)
			return
		}
		logger.Infof("Successfully uploaded %s to %s", filePath, remotePath)
		if removeLocalAfterUpload {
			if err := os.Remove(filePath); err != nil {
				logger.Warnf("Failed to delete local file %s after upload: %v", filePath, err)
				errChan <- fmt.Errorf("uploaded but failed to delete local file %s: %w", filePath, err)
			} else {
				logger.Debugf("Deleted local file %s after successful upload", filePath)
			}
		}
	}
	for _, filePath := range files {
		wg.Add(1)
		go uploadFile(filePath)
	}
	wg.Wait()
	close(errChan)
	if err, ok := <-errChan; ok {
		return err
	}
	return nil
}

// UploadToAllStorages uploads to every storage in order. Local files are
// only removed after the last storage has them.
func UploadToAllStorages(ctx context.Context, storages []config.RemoteStorageConfig, files []string, root string, concurrency int, removeLocal bool) error {
	if len(storages) == 0 {
		logger.Infof("No remote storages configured, skipping upload")
		return nil
	}
	for i, storage := range storages {
		logger.Infof("Uploading to remote storage: %s (type: %s)", storage.Base, storage.Type)
		last := i == len(storages)-1
		if err := UploadToStorage(ctx, storage, files, root, concurrency, removeLocal && last); err != nil {
			return fmt.Errorf("failed to upload to storage %s: %w", storage.Base, err)
		}
		logger.Infof("Successfully uploaded all files to storage: %s", storage.Base)
	}
	logger.Infof("Successfully uploaded to all configured remote storages")
	return nil
}
