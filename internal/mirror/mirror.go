package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MimeLyc/bioreel/internal/config"
	"github.com/MimeLyc/bioreel/internal/project"
	"github.com/MimeLyc/bioreel/pkg/log"
)

// Mirror copies finished project folders to an S3-compatible bucket.
// A zero Mirror is disabled and every call is a no-op.
type Mirror struct {
	client *minio.Client
	bucket string
	region string
}

// Result lists what one Upload did.
type Result struct {
	Uploaded []string `json:"uploaded"`
	Failed   []string `json:"failed,omitempty"`
}

// New connects to the configured endpoint. It returns a disabled mirror when
// no endpoint or bucket is set.
func New(cfg config.MirrorConfig) (*Mirror, error) {
	if !cfg.Enabled() {
		return &Mirror{}, nil
	}
	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create mirror client: %w", err)
	}
	return &Mirror{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// splitEndpoint accepts "host:port" or a URL; an explicit scheme wins over
// useSSL.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	default:
		return strings.TrimSuffix(endpoint, "/"), useSSL
	}
}

func (m *Mirror) Enabled() bool {
	return m != nil && m.client != nil
}

// ObjectKey maps a file inside the project folder to its bucket key.
func ObjectKey(projectKey, rel string) string {
	return path.Join("actors", projectKey, filepath.ToSlash(rel))
}

// Upload copies every file of the project folder. Individual failures are
// collected in the result; the error reports that something failed.
func (m *Mirror) Upload(ctx context.Context, proj *project.Project) (Result, error) {
	var res Result
	if !m.Enabled() {
		return res, nil
	}
	if err := m.ensureBucket(ctx); err != nil {
		return res, err
	}

	err := filepath.WalkDir(proj.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(proj.Dir, p)
		if err != nil {
			return err
		}
		key := ObjectKey(proj.Key, rel)
		_, err = m.client.FPutObject(ctx, m.bucket, key, p, minio.PutObjectOptions{
			ContentType: contentType(p),
		})
		if err != nil {
			log.Warn("Mirror upload of %s failed: %v", key, err)
			res.Failed = append(res.Failed, key)
			return nil
		}
		res.Uploaded = append(res.Uploaded, key)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walk project folder: %w", err)
	}
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("mirror: %d of %d uploads failed", len(res.Failed), len(res.Failed)+len(res.Uploaded))
	}
	log.Info("Mirrored %d files of %s to bucket %s", len(res.Uploaded), proj.Key, m.bucket)
	return res, nil
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	log.Info("Bucket '%s' created", m.bucket)
	return nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
