package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fixkme/timerwheel/mlog"
	"github.com/fsnotify/fsnotify"
	"go.yaml.in/yaml/v3"
)

// EnvPrefix 环境变量覆盖配置的前缀, 例如 TIMERD_REDIS_ADDR
const EnvPrefix = "TIMERD_"

var Config *AppConfig

type AppConfig struct {
	NodeId       string `json:"node_id" yaml:"node_id"`
	AppVersion   string `json:"app_version" yaml:"app_version"`
	TimeOffsetMs int64  `json:"time_offset_ms" yaml:"time_offset_ms"` // 调试用时间偏移
	IsDebug      bool   `json:"is_debug" yaml:"is_debug"`
	LogConfig    `yaml:",inline"`
	WheelConfig  `yaml:",inline"`
	RedisConfig  `yaml:",inline"`
	MongoConfig  `yaml:",inline"`
	EtcdConfig   `yaml:",inline"`
}

type LogConfig struct {
	LogPath       string `json:"log_path" yaml:"log_path"`
	LogName       string `json:"log_name" yaml:"log_name"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	LogStdOut     bool   `json:"log_std_out" yaml:"log_std_out"`
	LogMaxSizeMB  int    `json:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `json:"log_max_backups" yaml:"log_max_backups"`
	LogMaxAgeDays int    `json:"log_max_age_days" yaml:"log_max_age_days"`
}

type WheelConfig struct {
	WheelKey           string `json:"wheel_key" yaml:"wheel_key"`                       // 镜像存储的key
	WheelCapacity      int    `json:"wheel_capacity" yaml:"wheel_capacity"`             // 实体池容量
	TickIntervalMs     int    `json:"tick_interval_ms" yaml:"tick_interval_ms"`         // 驱动间隔
	TaskQueueSize      int    `json:"task_queue_size" yaml:"task_queue_size"`           // 跨协程调用队列
	SnapshotStore      string `json:"snapshot_store" yaml:"snapshot_store"`             // none/file/redis/mongo/etcd
	SnapshotDir        string `json:"snapshot_dir" yaml:"snapshot_dir"`                 // file 存储目录
	SnapshotPrefix     string `json:"snapshot_prefix" yaml:"snapshot_prefix"`           // redis/etcd key 前缀
	SnapshotIntervalMs int    `json:"snapshot_interval_ms" yaml:"snapshot_interval_ms"` // 定期保存, 0 只在退出时保存
	SnapshotCron       string `json:"snapshot_cron" yaml:"snapshot_cron"`               // cron 表达式, 优先于 interval
	LockTTLMs          int    `json:"lock_ttl_ms" yaml:"lock_ttl_ms"`                   // 镜像独占锁租期, 0 不加锁
}

type RedisConfig struct {
	RedisMode       string `json:"redis_mode" yaml:"redis_mode"`
	RedisAddr       string `json:"redis_addr" yaml:"redis_addr"` // 多个地址用,隔开
	RedisMasterName string `json:"redis_master_name" yaml:"redis_master_name"`
	RedisPassword   string `json:"redis_password" yaml:"redis_password"`
	RedisDB         int    `json:"redis_db" yaml:"redis_db"`
}

type MongoConfig struct {
	MongoUri           string `json:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase      string `json:"mongo_database" yaml:"mongo_database"`
	MongoCollection    string `json:"mongo_collection" yaml:"mongo_collection"`
	MongoMaxPoolSize   int    `json:"mongo_max_pool_size" yaml:"mongo_max_pool_size"`
	MongoConnIdleMs    int    `json:"mongo_conn_idle_ms" yaml:"mongo_conn_idle_ms"`
	MongoSecondaryOk   bool   `json:"mongo_secondary_ok" yaml:"mongo_secondary_ok"` // 读镜像允许走从库
	MongoDialTimeoutMs int    `json:"mongo_dial_timeout_ms" yaml:"mongo_dial_timeout_ms"`
}

type EtcdConfig struct {
	EtcdEndpoints     string `json:"etcd_endpoints" yaml:"etcd_endpoints"` // 多个地址用,隔开
	EtcdDialTimeoutMs int    `json:"etcd_dial_timeout_ms" yaml:"etcd_dial_timeout_ms"`
}

// Default 未配置项的默认值
func Default() *AppConfig {
	return &AppConfig{
		NodeId: "timerd",
		LogConfig: LogConfig{
			LogPath:  "./logs",
			LogName:  "timerd",
			LogLevel: "info",
		},
		WheelConfig: WheelConfig{
			WheelKey:       "timerd",
			WheelCapacity:  1 << 16,
			TickIntervalMs: 10,
			TaskQueueSize:  10240,
			SnapshotStore:  "file",
			SnapshotDir:    "./data",
			SnapshotPrefix: "timerd:snapshot:",
		},
		MongoConfig: MongoConfig{
			MongoDatabase:      "timerd",
			MongoCollection:    "snapshots",
			MongoMaxPoolSize:   16,
			MongoConnIdleMs:    30000,
			MongoDialTimeoutMs: 3000,
		},
		EtcdConfig: EtcdConfig{
			EtcdDialTimeoutMs: 3000,
		},
	}
}

// LoadConfig 先读文件(.yaml/.yml 按 yaml 解析, 其他按 json)，再用环境变量覆盖
func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	conf := Default()
	if len(configFile) > 0 {
		if err := loadConfigFromFile(configFile, conf); err != nil {
			return err
		}
	}
	if loadConfigFromEnv != nil {
		if err := loadConfigFromEnv(conf); err != nil {
			return err
		}
	}
	Config = conf
	return nil
}

func loadConfigFromFile(configFile string, conf *AppConfig) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, conf)
	default:
		return json.Unmarshal(data, conf)
	}
}

// LoadConfigFromEnv 按 yaml 字段名覆盖，例如 wheel_key 对应 TIMERD_WHEEL_KEY
func LoadConfigFromEnv(conf *AppConfig) error {
	return applyEnv(reflect.ValueOf(conf).Elem())
}

func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, fv := t.Field(i), v.Field(i)
		if field.Anonymous && fv.Kind() == reflect.Struct {
			if err := applyEnv(fv); err != nil {
				return err
			}
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" {
			continue
		}
		key := EnvPrefix + strings.ToUpper(name)
		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			fv.SetInt(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			fv.SetBool(b)
		}
	}
	return nil
}

func (conf *AppConfig) TickInterval() time.Duration {
	return time.Duration(conf.TickIntervalMs) * time.Millisecond
}

func (conf *AppConfig) SnapshotInterval() time.Duration {
	return time.Duration(conf.SnapshotIntervalMs) * time.Millisecond
}

func (conf *AppConfig) LockTTL() time.Duration {
	return time.Duration(conf.LockTTLMs) * time.Millisecond
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// Watch 配置文件变化时重新加载并回调，用于热更新日志级别等。ctx 结束时返回
func Watch(ctx context.Context, configFile string, onChange func(*AppConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	dir, file := filepath.Split(configFile)
	if dir == "" {
		dir = "."
	}
	if err = w.Add(dir); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			conf := Default()
			if err := loadConfigFromFile(configFile, conf); err != nil {
				mlog.Warnf("config reload %s failed: %v", configFile, err)
				continue
			}
			if err := LoadConfigFromEnv(conf); err != nil {
				mlog.Warnf("config reload %s env failed: %v", configFile, err)
				continue
			}
			onChange(conf)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			mlog.Warnf("config watch %s error: %v", configFile, err)
		}
	}
}
