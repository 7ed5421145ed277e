package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"loosevault/pkg/storage"
	"loosevault/pkg/storage/loose"
	"loosevault/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Mirror 把本地 loose 对象原样 (压缩后的文件字节) 同步到 S3 兼容存储
// Key 布局与本地目录一致: <prefix>/aa/bbcc...
type Mirror struct {
	client  *s3.Client
	bucket  string
	prefix  string
	local   loose.Store
	workers int
	log     *zap.Logger
}

// Config 用于初始化 Mirror
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	Workers         int
}

// PushStats 汇总一次推送
type PushStats struct {
	Uploaded int
	Skipped  int
}

func NewMirror(ctx context.Context, local loose.Store, cfg Config, log *zap.Logger) (*Mirror, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("mirror bucket is not configured")
	}
	if log == nil {
		log = zap.NewNop()
	}

	// 1. 加载基础配置 (仅包含 Region 和 Credentials)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时，注入特定于 S3 的配置
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须强制使用 Path Style
		o.UsePathStyle = true
	})

	// 3. 确保 Bucket 存在
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket}); err != nil {
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket}); err != nil {
			log.Warn("failed to ensure bucket exists", zap.String("bucket", cfg.Bucket), zap.Error(err))
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	return &Mirror{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		local:   local,
		workers: workers,
		log:     log.Named("mirror"),
	}, nil
}

// keyFor 将 ID 转换为 S3 Key (Sharding)
// Logic: "aabbcc..." -> "<prefix>/aa/bbcc..."
func keyFor(prefix string, id types.ID) string {
	h := id.String()
	k := h[:2] + "/" + h[2:]
	if prefix == "" {
		return k
	}
	return prefix + "/" + k
}

// idFromKey 是 keyFor 的逆操作
func idFromKey(kind types.HashKind, prefix, key string) (types.ID, error) {
	if prefix != "" {
		rest, ok := strings.CutPrefix(key, prefix+"/")
		if !ok {
			return types.ID{}, fmt.Errorf("key %q outside prefix %q", key, prefix)
		}
		key = rest
	}
	dir, name, ok := strings.Cut(key, "/")
	if !ok || len(dir) != 2 || strings.Contains(name, "/") {
		return types.ID{}, fmt.Errorf("key %q is not an object key", key)
	}
	return types.ParseID(kind, dir+name)
}

// Has 检查远端对象是否存在
func (m *Mirror) Has(ctx context.Context, id types.ID) (bool, error) {
	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(keyFor(m.prefix, id)),
	})
	if err == nil {
		return true, nil
	}

	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return false, nil
	}
	// 兼容性：某些 S3 实现可能返回 generic 404 error string
	if strings.Contains(err.Error(), "404") {
		return false, nil
	}
	return false, err
}

// Push 并发上传本地对象，远端已有的 Key 会被跳过
func (m *Mirror) Push(ctx context.Context, ids []types.ID) (PushStats, error) {
	var uploaded, skipped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, id := range ids {
		g.Go(func() error {
			done, err := m.pushOne(ctx, id)
			if err != nil {
				return fmt.Errorf("push %s: %w", id, err)
			}
			if done {
				uploaded.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	stats := PushStats{Uploaded: int(uploaded.Load()), Skipped: int(skipped.Load())}
	m.log.Info("push finished", zap.Int("uploaded", stats.Uploaded), zap.Int("skipped", stats.Skipped), zap.Error(err))
	return stats, err
}

// PushAll 上传本地库中的全部对象
func (m *Mirror) PushAll(ctx context.Context) (PushStats, error) {
	var ids []types.ID
	for id, err := range m.local.Objects() {
		if err != nil {
			return PushStats{}, err
		}
		ids = append(ids, id)
	}
	return m.Push(ctx, ids)
}

func (m *Mirror) pushOne(ctx context.Context, id types.ID) (bool, error) {
	// 1. 幂等性检查: Head 比 Put 便宜
	exists, err := m.Has(ctx, id)
	if err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	if exists {
		return false, nil
	}

	// 2. 读取本地的压缩文件，原样上传
	p, ok, err := m.local.Locate(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, storage.ErrNotFound
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return false, err
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(keyFor(m.prefix, id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/zlib"),
	})
	if err != nil {
		return false, fmt.Errorf("s3 put failed: %w", err)
	}
	m.log.Debug("uploaded", zap.String("id", id.String()), zap.Int("bytes", len(data)))
	return true, nil
}

// Fetch 下载对象并通过 loose.Store.Import 校验后存入本地
func (m *Mirror) Fetch(ctx context.Context, ids []types.ID) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, id := range ids {
		g.Go(func() error {
			if err := m.fetchOne(ctx, id); err != nil {
				return fmt.Errorf("fetch %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Mirror) fetchOne(ctx context.Context, id types.ID) error {
	if ok, err := m.local.Has(ctx, id); err != nil || ok {
		return err
	}

	resp, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(keyFor(m.prefix, id)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("s3 read failed: %w", err)
	}
	if err := m.local.Import(ctx, id, data); err != nil {
		return err
	}
	m.log.Debug("fetched", zap.String("id", id.String()), zap.Int("bytes", len(data)))
	return nil
}

// Expand 利用 Prefix 查询扩展短哈希
func (m *Mirror) Expand(ctx context.Context, short types.HashPrefix) (types.ID, error) {
	if err := short.Validate(); err != nil {
		return types.ID{}, err
	}
	s := short.String()
	listPrefix := s[:2] + "/" + s[2:]
	if m.prefix != "" {
		listPrefix = m.prefix + "/" + listPrefix
	}

	// MaxKeys=2: 只需要知道是否有 0 个、1 个(唯一) 或 >1 个(歧义)
	resp, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(m.bucket),
		Prefix:  aws.String(listPrefix),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return types.ID{}, fmt.Errorf("s3 list failed: %w", err)
	}

	switch n := aws.ToInt32(resp.KeyCount); {
	case n == 0:
		return types.ID{}, fmt.Errorf("%w: %s", storage.ErrNotFound, s)
	case n > 1:
		return types.ID{}, fmt.Errorf("%w: %s", storage.ErrAmbiguousHash, s)
	}
	return idFromKey(m.local.HashKind(), m.prefix, aws.ToString(resp.Contents[0].Key))
}
