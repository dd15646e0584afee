package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vselutin/lineage/internal/domain"
)

// Store — контентно-адресуемое хранилище порождённых выходов.
//
// Объекты ключуются идентичностью содержимого, не путём: один и тот
// же файл, порождённый разными планами, хранится один раз, а любая
// записанная generation восстановима по своему checksum.
type Store struct {
	client *minio.Client
	bucket string
	root   string
	logger *slog.Logger
}

// Config — подключение к объектному хранилищу.
// Заполняется из окружения (LINEAGE_S3_*).
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ConfigFromEnv читает конфигурацию из окружения. Пустой Endpoint
// означает, что хранилище артефактов не настроено.
func ConfigFromEnv() Config {
	useSSL, _ := strconv.ParseBool(os.Getenv("LINEAGE_S3_USE_SSL"))
	bucket := os.Getenv("LINEAGE_S3_BUCKET")
	if bucket == "" {
		bucket = "lineage-artifacts"
	}
	return Config{
		Endpoint:  os.Getenv("LINEAGE_S3_ENDPOINT"),
		AccessKey: os.Getenv("LINEAGE_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("LINEAGE_S3_SECRET_KEY"),
		Bucket:    bucket,
		UseSSL:    useSSL,
	}
}

// ErrNotConfigured — хранилище артефактов не настроено.
var ErrNotConfigured = errors.New("artifact store is not configured")

// New создаёт Store и гарантирует существование бакета.
// root — корень проекта, относительно которого разрешаются пути.
func New(ctx context.Context, cfg Config, root string, logger *slog.Logger) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}
	return &Store{client: client, bucket: cfg.Bucket, root: root, logger: logger}, nil
}

// objectKey раскладывает checksum в двухуровневый префикс, чтобы не
// складывать все объекты в один листинг.
func objectKey(checksum domain.ContentID) string {
	s := string(checksum)
	if len(s) < 4 {
		return "objects/" + s
	}
	return "objects/" + s[:2] + "/" + s[2:4] + "/" + s
}

// Upload выгружает файл под ключом его идентичности.
// Уже существующий объект не выгружается повторно.
func (s *Store) Upload(ctx context.Context, path string, checksum domain.ContentID) error {
	key := objectKey(checksum)

	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return nil // содержимое уже в хранилище
	}
	if resp := minio.ToErrorResponse(err); resp.Code != "NoSuchKey" {
		return fmt.Errorf("stat artifact %s: %w", key, err)
	}

	_, err = s.client.FPutObject(ctx, s.bucket, key, filepath.Join(s.root, path), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		UserMetadata: map[string]string{
			"lineage-path": path,
		},
	})
	if err != nil {
		return fmt.Errorf("upload artifact %s: %w", path, err)
	}
	s.logger.Debug("artifact uploaded", "path", path, "key", key)
	return nil
}

// Restore скачивает содержимое с данной идентичностью в путь
// рабочего дерева. Используется для восстановления отсутствующих
// входов перед воспроизведением без пересчёта их производителей.
func (s *Store) Restore(ctx context.Context, path string, checksum domain.ContentID) error {
	key := objectKey(checksum)
	target := filepath.Join(s.root, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("restore artifact %s: %w", path, err)
	}
	if err := s.client.FGetObject(ctx, s.bucket, key, target, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("restore artifact %s: %w", path, err)
	}
	s.logger.Info("artifact restored", "path", path, "key", key)
	return nil
}
