package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/DelayBoard/config"
	"github.com/BearBump/DelayBoard/internal/broker/kafka"
	"github.com/BearBump/DelayBoard/internal/broker/messages"
	"github.com/BearBump/DelayBoard/internal/cache"
	"github.com/BearBump/DelayBoard/internal/cache/rediscache"
	whfake "github.com/BearBump/DelayBoard/internal/integrations/warehouse/fake"
	"github.com/BearBump/DelayBoard/internal/integrations/warehouse/hamurlabs"
	"github.com/BearBump/DelayBoard/internal/models"
	"github.com/BearBump/DelayBoard/internal/services/pipeline"
	"github.com/BearBump/DelayBoard/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func fakeConfig() *config.Config {
	return &config.Config{
		Marketplace: config.MarketplaceConfig{
			Mode: "fake",
			Accounts: []config.AccountConfig{
				{ID: "acc-1", SellerID: "1001", Username: "u", Password: "s3cret"},
			},
		},
		Warehouse: config.WarehouseConfig{Mode: "fake", Password: "wh-s3cret"},
	}
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func startBoard(t *testing.T, b *board) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan string, 1)
	opts := delayBoardOpts{
		grpcAddr:     "127.0.0.1:0",
		httpAddr:     "127.0.0.1:0",
		grpcDialAddr: "127.0.0.1:0",
		swaggerPath:  writeSwagger(t),
		onListen:     func(_grpcAddr, httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runDelayBoard(ctx, opts, b) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(3 * time.Second):
			t.Error("timeout waiting servers to stop")
		}
	})

	select {
	case addr := <-addrCh:
		return "http://" + addr
	case err := <-errCh:
		t.Fatalf("board did not start: %v", err)
	}
	return ""
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRunDelayBoard_EndToEnd(t *testing.T) {
	b, err := buildBoard(fakeConfig(), defaultBoardFactories())
	require.NoError(t, err)
	defer b.Close()

	base := startBoard(t, b)

	code, body := get(t, base+"/swagger.json")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"swagger"`)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	code, _ = get(t, base+"/readyz")
	require.Equal(t, http.StatusOK, code)

	code, _ = get(t, base+"/v1/accounts/acc-1/snapshot")
	require.Equal(t, http.StatusNotFound, code)

	resp, err := http.Post(base+"/v1/accounts/acc-1/refresh", "application/json", nil)
	require.NoError(t, err)
	var refreshed models.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refreshed))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "acc-1", refreshed.AccountID)
	require.NotEmpty(t, refreshed.Orders)

	code, body = get(t, base+"/v1/accounts/acc-1/snapshot")
	require.Equal(t, http.StatusOK, code)
	var stored models.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &stored))
	require.Equal(t, refreshed.ID, stored.ID)

	code, body = get(t, base+"/stats")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"acc-1":"ready"`)
	require.Contains(t, body, b.session)

	code, body = get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "delayboard_refresh_total")

	code, body = get(t, base+"/config")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"acc-1"`)
	require.NotContains(t, body, "s3cret")
}

func TestRunDelayBoard_SwaggerRequired(t *testing.T) {
	b, err := buildBoard(fakeConfig(), defaultBoardFactories())
	require.NoError(t, err)
	defer b.Close()

	err = runDelayBoard(context.Background(), delayBoardOpts{grpcAddr: "127.0.0.1:0", httpAddr: "127.0.0.1:0"}, b)
	require.ErrorContains(t, err, "swaggerPath")

	err = runDelayBoard(context.Background(), delayBoardOpts{
		grpcAddr:    "127.0.0.1:0",
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "missing.json"),
	}, b)
	require.ErrorContains(t, err, "swagger file not found")
}

func TestBuildBoard_Defaults(t *testing.T) {
	b, err := buildBoard(fakeConfig(), defaultBoardFactories())
	require.NoError(t, err)
	defer b.Close()

	require.IsType(t, &cache.Memory{}, b.snapCache)
	require.Equal(t, 10, b.coordinator.Stats().Concurrency)
	require.Equal(t, []string{"acc-1"}, b.orch.Accounts())
	require.Empty(t, b.closers)
	require.NotEmpty(t, b.session)
}

func TestBuildBoard_RejectsUnknownLookupKey(t *testing.T) {
	cfg := fakeConfig()
	cfg.Warehouse.LookupKey = "barcode"

	_, err := buildBoard(cfg, defaultBoardFactories())
	require.Error(t, err)
}

func TestWarehouseFactory_FakeOnlyWhenAsked(t *testing.T) {
	dir := stores.New(stores.DefaultBranches, nil)
	newWarehouse := defaultBoardFactories().newWarehouse

	for _, mode := range []string{"", "hamurlabs"} {
		cfg := &config.Config{Warehouse: config.WarehouseConfig{Mode: mode}}
		c, err := newWarehouse(cfg, dir)
		require.Error(t, err, "mode %q", mode)
		require.Nil(t, c)
	}

	c, err := newWarehouse(&config.Config{Warehouse: config.WarehouseConfig{Mode: "hamurlabs", BaseURL: "http://wh.local"}}, dir)
	require.NoError(t, err)
	require.IsType(t, &hamurlabs.Client{}, c)

	c, err = newWarehouse(&config.Config{Warehouse: config.WarehouseConfig{Mode: "fake"}}, dir)
	require.NoError(t, err)
	require.IsType(t, &whfake.FakeClient{}, c)
}

func TestBuildBoard_HamurlabsWithoutBaseURLFails(t *testing.T) {
	cfg := fakeConfig()
	cfg.Warehouse = config.WarehouseConfig{Mode: "hamurlabs"}

	b, err := buildBoard(cfg, defaultBoardFactories())
	require.Error(t, err)
	require.Nil(t, b)
}

func TestBuildBoard_RedisSnapshotsUseSessionPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := fakeConfig()
	cfg.Redis = config.RedisConfig{Host: mr.Host(), Port: port}
	cfg.DelayBoard.SnapshotCache = "redis"
	cfg.Warehouse.RateLimitPerMinute = 1000

	b, err := buildBoard(cfg, defaultBoardFactories())
	require.NoError(t, err)
	defer b.Close()

	require.IsType(t, &rediscache.RedisCache{}, b.snapCache)
	require.Len(t, b.closers, 2)

	_, err = b.orch.Refresh(context.Background(), "acc-1")
	require.NoError(t, err)

	prefix := "delayboard:" + b.session + ":"
	var snapshotKeys int
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, prefix+"snapshot:") {
			snapshotKeys++
		}
	}
	require.Equal(t, 1, snapshotKeys)
}

type notifierStub struct {
	mu    sync.Mutex
	topic string
	msgs  []kafka.Message
}

func (n *notifierStub) PublishBatch(ctx context.Context, topic string, msgs []kafka.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topic = topic
	n.msgs = append(n.msgs, msgs...)
	return nil
}

func TestBuildBoard_NotifierGetsOverdueOrders(t *testing.T) {
	stub := &notifierStub{}
	closed := false
	f := defaultBoardFactories()
	f.newNotifier = func(*config.Config) (pipeline.Notifier, func()) {
		return stub, func() { closed = true }
	}

	b, err := buildBoard(fakeConfig(), f)
	require.NoError(t, err)

	snap, err := b.orch.Refresh(context.Background(), "acc-1")
	require.NoError(t, err)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Equal(t, defaultOverdueTopic, stub.topic)
	require.Len(t, stub.msgs, len(snap.Overdue())+1)
	for _, m := range stub.msgs[:len(stub.msgs)-1] {
		kind, err := messages.KindOf(m.Value)
		require.NoError(t, err)
		require.Equal(t, messages.KindOrderOverdue, kind)

		var ev messages.OrderOverdue
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		require.Equal(t, "acc-1", ev.AccountID)
		require.Equal(t, ev.Key(), m.Key)
	}

	var ready messages.SnapshotReady
	require.NoError(t, json.Unmarshal(stub.msgs[len(stub.msgs)-1].Value, &ready))
	require.Equal(t, messages.KindSnapshotReady, ready.Kind)
	require.Equal(t, snap.ID, ready.SnapshotID)
	require.Equal(t, len(snap.Overdue()), ready.Overdue)

	b.Close()
	require.True(t, closed)
}

func TestSeedFor(t *testing.T) {
	require.Equal(t, seedFor("acc-1"), seedFor("acc-1"))
	require.NotEqual(t, seedFor("acc-1"), seedFor("acc-2"))
	require.GreaterOrEqual(t, seedFor("acc-1"), int64(0))
}
