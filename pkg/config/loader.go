package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RepoDir 是仓库元数据目录名
const RepoDir = ".lv"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
// 返回实际使用的配置文件路径，没有找到时为空
func Load(cfgFile string) (string, error) {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		// 搜索顺序：当前目录 -> ./.lv -> ~/.lv
		viper.AddConfigPath(".")
		viper.AddConfigPath(RepoDir)
		viper.AddConfigPath(filepath.Join(home, RepoDir))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (LV_STORAGE_PATH 等)
	viper.SetEnvPrefix("LV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，可能全靠默认值和环境变量
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("fatal error config file: %w", err)
	}

	return viper.ConfigFileUsed(), nil
}

func setDefaults() {
	wd, _ := os.Getwd()
	repo := filepath.Join(wd, RepoDir)

	// 存储默认值
	viper.SetDefault("storage.path", filepath.Join(repo, "objects"))
	viper.SetDefault("storage.hash", "sha1")
	viper.SetDefault("storage.compression_level", 1)
	viper.SetDefault("storage.sync", false)
	viper.SetDefault("storage.verify", false)

	// 缓存
	viper.SetDefault("cache.headers", 4096)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// 对象目录
	viper.SetDefault("catalog.driver", "sqlite")
	viper.SetDefault("catalog.path", filepath.Join(repo, "catalog.db"))

	// 数据库默认值 (catalog.driver = postgres)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "loosevault")
	viper.SetDefault("database.sslmode", "disable")

	// S3 镜像
	viper.SetDefault("mirror.s3.endpoint", "")
	viper.SetDefault("mirror.s3.region", "us-east-1")
	viper.SetDefault("mirror.s3.bucket", "")
	viper.SetDefault("mirror.s3.prefix", "objects")
	viper.SetDefault("mirror.s3.access_key_id", "")
	viper.SetDefault("mirror.s3.secret_access_key", "")

	// 并发度
	workers := runtime.GOMAXPROCS(0)
	viper.SetDefault("mirror.workers", 8)
	viper.SetDefault("fsck.workers", workers)
	viper.SetDefault("ingest.workers", workers)
	viper.SetDefault("ingest.stream_threshold", 8<<20)

	viper.SetDefault("log.level", "warn")
}
