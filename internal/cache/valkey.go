package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr      string
	Password  string
	ReportKey string
	ReportTTL time.Duration
}

func (c Config) Enabled() bool {
	return c.Addr != ""
}

// ValkeyClient caches daily reports in a single hash, one field per
// requested range. Any write that changes report totals drops the hash.
type ValkeyClient struct {
	client    *redis.Client
	reportKey string
	reportTTL time.Duration
}

func NewValkeyClient(cfg Config) (*ValkeyClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return newValkeyClient(rdb, cfg), nil
}

func newValkeyClient(rdb *redis.Client, cfg Config) *ValkeyClient {
	key := cfg.ReportKey
	if key == "" {
		key = "reports:daily"
	}
	ttl := cfg.ReportTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ValkeyClient{client: rdb, reportKey: key, reportTTL: ttl}
}

func reportField(from, to string) string {
	return from + ":" + to
}

// GetDailyReport decodes a cached report into dst. It reports false on a
// cache miss.
func (v *ValkeyClient) GetDailyReport(ctx context.Context, from, to string, dst interface{}) (bool, error) {
	raw, err := v.client.HGet(ctx, v.reportKey, reportField(from, to)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache lookup error: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("invalid cached report: %w", err)
	}
	return true, nil
}

func (v *ValkeyClient) SetDailyReport(ctx context.Context, from, to string, report interface{}) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	pipe := v.client.TxPipeline()
	pipe.HSet(ctx, v.reportKey, reportField(from, to), raw)
	pipe.Expire(ctx, v.reportKey, v.reportTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache store error: %w", err)
	}
	return nil
}

func (v *ValkeyClient) InvalidateReports(ctx context.Context) error {
	if err := v.client.Del(ctx, v.reportKey).Err(); err != nil {
		return fmt.Errorf("cache invalidate error: %w", err)
	}
	return nil
}

func (v *ValkeyClient) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}
