package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
marketplace:
  base_url: "https://api.trendyol.com/sapigw"
  mode: "trendyol"
  page_size: 200
  accounts:
    - id: "main"
      seller_id: "123"
      username: "${DB_TEST_USER}"
      password: "${DB_TEST_PASS}"
    - id: "outlet"
      seller_id: "456"
warehouse:
  base_url: "http://hamurlabs.local"
  mode: "hamurlabs"
  lookup_key: "internal_id"
  concurrency: 5
kafka:
  host: "localhost"
  port: 9092
  order_overdue_topic_name: "orders.overdue"
redis:
  host: "localhost"
  port: 6379
delayboard:
  http_addr: ":8080"
  timezone_offset_hours: 0
  snapshot_cache: "redis"
stores:
  "4216": "Ereğli Yeni"
  "4200": ""
`

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_TEST_USER", "api-user")
	t.Setenv("DB_TEST_PASS", "s3cret")
	p := writeConfig(t, sample)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Len(t, cfg.Marketplace.Accounts, 2)
	require.Equal(t, "api-user", cfg.Marketplace.Accounts[0].Username)
	require.Equal(t, "s3cret", cfg.Marketplace.Accounts[0].Password)
	require.Equal(t, "internal_id", cfg.Warehouse.LookupKey)
	require.Equal(t, "orders.overdue", cfg.Kafka.OrderOverdueTopicName)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	require.NotNil(t, cfg.DelayBoard.TimezoneOffsetHours)
	require.Equal(t, 0, *cfg.DelayBoard.TimezoneOffsetHours)
	require.Equal(t, "Ereğli Yeni", cfg.Stores["4216"])
	v, ok := cfg.Stores["4200"]
	require.True(t, ok)
	require.Equal(t, "", v)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	p := writeConfig(t, sample)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(p), ".env"),
		[]byte("DB_TEST_USER=from-dotenv\nDB_TEST_PASS=pw\n"), 0o600))
	t.Setenv("DB_TEST_PASS", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("DB_TEST_USER") })

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Marketplace.Accounts[0].Username)
	require.Equal(t, "from-env", cfg.Marketplace.Accounts[0].Password)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"no accounts": `
marketplace:
  mode: "fake"
`,
		"bad lookup key": `
marketplace:
  accounts: [{id: "a", seller_id: "1"}]
warehouse:
  mode: "fake"
  lookup_key: "barcode"
`,
		"bad cache": `
marketplace:
  accounts: [{id: "a", seller_id: "1"}]
warehouse:
  mode: "fake"
delayboard:
  snapshot_cache: "disk"
`,
		"duplicate account": `
marketplace:
  accounts: [{id: "a", seller_id: "1"}, {id: "a", seller_id: "2"}]
warehouse:
  mode: "fake"
`,
		"offset out of range": `
marketplace:
  accounts: [{id: "a", seller_id: "1"}]
warehouse:
  mode: "fake"
delayboard:
  timezone_offset_hours: 20
`,
		"hamurlabs without base url": `
marketplace:
  accounts: [{id: "a", seller_id: "1"}]
warehouse:
  mode: "hamurlabs"
`,
		"default warehouse mode without base url": `
marketplace:
  accounts: [{id: "a", seller_id: "1"}]
`,
		"malformed warehouse url": `
marketplace:
  accounts: [{id: "a", seller_id: "1"}]
warehouse:
  base_url: "not a url"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoadConfig_FakeWarehouseNeedsNoBaseURL(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
marketplace:
  mode: "fake"
  accounts: [{id: "a", seller_id: "1"}]
warehouse:
  mode: "fake"
`))
	require.NoError(t, err)
	require.Equal(t, "fake", cfg.Warehouse.Mode)
	require.Empty(t, cfg.Warehouse.BaseURL)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestRedisAndKafkaEnabled(t *testing.T) {
	require.False(t, RedisConfig{}.Enabled())
	require.True(t, RedisConfig{Host: "r", Port: 6379}.Enabled())
	require.False(t, KafkaConfig{Host: "k"}.Enabled())
}
