package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig 按顺序合成配置，后者覆盖前者：
// base.yaml -> <env>.yaml -> ${VAR} 占位符（secrets.env 优先于进程环境）-> 环境变量覆盖
func LoadConfig(env string, configDir string) (map[string]any, error) {
	if configDir == "" {
		configDir = "config"
	}

	layers := []string{"base.yaml"}
	if env != "" && env != "base" {
		layers = append(layers, env+".yaml")
	}

	merged := map[string]any{}
	for i, name := range layers {
		layer, err := readYAML(filepath.Join(configDir, name))
		if errors.Is(err, fs.ErrNotExist) && i > 0 {
			// 环境文件可选，base.yaml 必须存在
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
		merged = mergeMaps(merged, layer)
	}

	secrets, err := readSecrets(filepath.Join(configDir, "secrets.env"))
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v, ok := secrets[key]; ok {
			return v
		}
		return os.Getenv(key)
	}
	merged, _ = expandValue(merged, lookup).(map[string]any)

	if err := applyEnvOverrides(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// readSecrets 读取 KEY=VALUE 格式的 secrets.env，文件不存在时返回空
func readSecrets(path string) (map[string]string, error) {
	secrets, err := godotenv.Read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return map[string]string{}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load secrets.env: %w", err)
	}
	return secrets, nil
}

// mergeMaps returns dst overlaid with src. Nested maps merge key by key,
// any other value in src replaces the one in dst.
func mergeMaps(dst, src map[string]any) map[string]any {
	out := maps.Clone(dst)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if base, ok := out[k].(map[string]any); ok {
				out[k] = mergeMaps(base, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// expandValue 递归替换字符串里的 ${VAR}，未知变量替换为空串
func expandValue(v any, lookup func(string) string) any {
	switch val := v.(type) {
	case string:
		if !strings.Contains(val, "${") {
			return val
		}
		return os.Expand(val, lookup)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item, lookup)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item, lookup)
		}
		return out
	}
	return v
}

type envOverride struct {
	key   string
	path  string
	parse func(string) (any, error)
}

func asString(s string) (any, error) { return s, nil }
func asInt(s string) (any, error)    { return strconv.Atoi(s) }
func asBool(s string) (any, error)   { return strconv.ParseBool(s) }

// envOverrides 环境变量优先级最高，部署时不用改 yaml
var envOverrides = []envOverride{
	{"DB_HOST", "db.host", asString},
	{"DB_PORT", "db.port", asInt},
	{"DB_USER", "db.user", asString},
	{"DB_PASSWORD", "db.password", asString},
	{"DB_NAME", "db.name", asString},
	{"STORE_DRIVER", "store.driver", asString},
	{"SQLITE_PATH", "store.sqlite_path", asString},
	{"MQ_URL", "mq.url", asString},
	{"REDIS_ADDR", "redis.addr", asString},
	{"REDIS_PASSWORD", "redis.password", asString},
	{"JWT_SECRET", "jwt.secret", asString},
	{"SERVER_PORT", "server.port", asString},
	{"AI_BASE_URL", "ai.base_url", asString},
	{"API_KEY_MISTRAL", "ai.api_key", asString},
	{"AI_MODEL", "ai.model", asString},
	{"GOOGLE_CLIENT_ID", "google.client_id", asString},
	{"GOOGLE_CLIENT_SECRET", "google.client_secret", asString},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", "otel.endpoint", asString},
	{"OTEL_ENABLED", "otel.enabled", asBool},
}

func applyEnvOverrides(cfg map[string]any) error {
	for _, o := range envOverrides {
		raw := os.Getenv(o.key)
		if raw == "" {
			continue
		}
		v, err := o.parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", o.key, raw, err)
		}
		setPath(cfg, o.path, v)
	}
	return nil
}

// setPath 按点分路径写入，中间层不存在时创建
func setPath(cfg map[string]any, path string, v any) {
	keys := strings.Split(path, ".")
	node := cfg
	for _, k := range keys[:len(keys)-1] {
		next, ok := node[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[k] = next
		}
		node = next
	}
	node[keys[len(keys)-1]] = v
}

// GetEnv 获取环境变量，如果未设置则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 获取配置环境（从环境变量 CONFIG_ENV，默认为 local）
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
