package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sensor-monitor/internal/feed"
	"sensor-monitor/internal/metrics"
	"sensor-monitor/internal/models"
)

const (
	realtimePrefix = "sensor_realtime:"
	realtimeIndex  = "sensor_realtime:devices"
	historyKey     = "sensor_data"
	changedChannel = "sensor:changed"
	remoteConfig   = "config:sensor-config"
	counterPrefix  = "stats:readings:"

	// CollectionHistory и CollectionRealtime имена коллекций для ClearData
	CollectionHistory  = "sensor_data"
	CollectionRealtime = "sensor_realtime"
)

// Options параметры подключения к Redis
type Options struct {
	Addr      string
	Password  string
	DB        int
	Retention time.Duration
	Logger    *slog.Logger
}

// Store хранилище показаний поверх Redis: текущие показания, история и канал изменений
type Store struct {
	client    *redis.Client
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ feed.Source = (*Store)(nil)

// NewStore подключается к Redis и проверяет соединение
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStoreWithClient(client, opts.Retention, opts.Logger), nil
}

// NewStoreWithClient оборачивает готовый клиент
func NewStoreWithClient(client *redis.Client, retention time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:    client,
		retention: retention,
		logger:    logger.With("component", "cache"),
		now:       time.Now,
	}
}

// SetClock подменяет часы; используется в тестах
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// StoreReading записывает показание в обе коллекции и публикует изменение
func (s *Store) StoreReading(ctx context.Context, r models.Reading) error {
	if err := r.Validate(""); err != nil {
		return err
	}
	data, err := EncodeReading(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	score := float64(r.Timestamp.UnixMilli())
	deviceHistory := historyKey + ":" + r.DeviceID

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, realtimePrefix+r.DeviceID, data, 0)
	pipe.SAdd(ctx, realtimeIndex, r.DeviceID)
	pipe.ZAdd(ctx, historyKey, redis.Z{Score: score, Member: data})
	pipe.ZAdd(ctx, deviceHistory, redis.Z{Score: score, Member: data})
	if s.retention > 0 {
		cutoff := strconv.FormatInt(s.now().Add(-s.retention).UnixMilli(), 10)
		pipe.ZRemRangeByScore(ctx, historyKey, "-inf", "("+cutoff)
		pipe.ZRemRangeByScore(ctx, deviceHistory, "-inf", "("+cutoff)
		pipe.Expire(ctx, deviceHistory, s.retention)
	}
	pipe.Incr(ctx, counterPrefix+string(r.Kind()))
	pipe.Publish(ctx, changedChannel, r.DeviceID)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RedisOperations.WithLabelValues("store_reading", "error").Inc()
		return fmt.Errorf("failed to store reading: %w", err)
	}
	metrics.RedisOperations.WithLabelValues("store_reading", "success").Inc()
	metrics.ReadingsReceived.WithLabelValues(string(r.Kind())).Inc()
	return nil
}

// Fetch разовая выборка. История возвращается от новых к старым.
func (s *Store) Fetch(ctx context.Context, q feed.Query) ([]models.Reading, error) {
	var (
		readings []models.Reading
		err      error
	)
	switch q.Collection {
	case feed.History:
		readings, err = s.fetchHistory(ctx, q)
	default:
		readings, err = s.fetchCurrent(ctx, q)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RedisOperations.WithLabelValues("fetch_"+q.Collection.String(), status).Inc()
	return readings, err
}

func (s *Store) fetchCurrent(ctx context.Context, q feed.Query) ([]models.Reading, error) {
	devices := []string{q.DeviceID}
	if q.DeviceID == "" {
		members, err := s.client.SMembers(ctx, realtimeIndex).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		slices.Sort(members)
		devices = members
	}
	if len(devices) == 0 {
		return nil, nil
	}

	keys := make([]string, len(devices))
	for i, d := range devices {
		keys[i] = realtimePrefix + d
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get current readings: %w", err)
	}

	out := make([]models.Reading, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		r, err := DecodeReading([]byte(raw))
		if err != nil {
			s.logger.Warn("Skipping malformed document", "key", keys[i], "error", err)
			continue
		}
		if q.ActiveOnly && r.Status != models.StatusActive {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) fetchHistory(ctx context.Context, q feed.Query) ([]models.Reading, error) {
	key := historyKey
	if q.DeviceID != "" {
		key = historyKey + ":" + q.DeviceID
	}

	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if q.Lookback > 0 {
		rng.Min = strconv.FormatInt(s.now().Add(-q.Lookback).UnixMilli(), 10)
	}
	if q.Limit > 0 && !q.ActiveOnly {
		rng.Count = int64(q.Limit)
	}

	members, err := s.client.ZRevRangeByScore(ctx, key, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	out := make([]models.Reading, 0, len(members))
	for _, m := range members {
		r, err := DecodeReading([]byte(m))
		if err != nil {
			s.logger.Warn("Skipping malformed document", "key", key, "error", err)
			continue
		}
		if q.ActiveOnly && r.Status != models.StatusActive {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Watch подписывается на канал изменений и отдает полный снимок сразу и после каждой записи
func (s *Store) Watch(ctx context.Context, q feed.Query) (<-chan feed.Delivery, error) {
	pubsub := s.client.Subscribe(ctx, changedChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		metrics.RedisOperations.WithLabelValues("watch", "error").Inc()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	metrics.RedisOperations.WithLabelValues("watch", "success").Inc()

	out := make(chan feed.Delivery, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		if !s.deliver(ctx, q, out) {
			return
		}

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if q.DeviceID != "" && msg.Payload != q.DeviceID && msg.Payload != "*" {
					continue
				}
				if !s.deliver(ctx, q, out) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) deliver(ctx context.Context, q feed.Query, out chan<- feed.Delivery) bool {
	readings, err := s.Fetch(ctx, q)
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- feed.Delivery{Readings: readings, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}

// ClearRequest параметры очистки данных
type ClearRequest struct {
	DeviceID    string   `json:"deviceId,omitempty"`
	Collections []string `json:"collections,omitempty"`
}

// ClearData удаляет историю и/или текущие показания; пустой DeviceID значит все устройства
func (s *Store) ClearData(ctx context.Context, req ClearRequest) (int64, error) {
	collections := req.Collections
	if len(collections) == 0 {
		collections = []string{CollectionHistory, CollectionRealtime}
	}

	var deleted int64
	if slices.Contains(collections, CollectionHistory) {
		n, err := s.clearHistory(ctx, req.DeviceID)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	if slices.Contains(collections, CollectionRealtime) {
		n, err := s.clearRealtime(ctx, req.DeviceID)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	target := req.DeviceID
	if target == "" {
		target = "*"
	}
	if err := s.client.Publish(ctx, changedChannel, target).Err(); err != nil {
		s.logger.Warn("Failed to publish clear event", "error", err)
	}
	metrics.RedisOperations.WithLabelValues("clear", "success").Inc()
	return deleted, nil
}

func (s *Store) clearHistory(ctx context.Context, deviceID string) (int64, error) {
	if deviceID != "" {
		key := historyKey + ":" + deviceID
		members, err := s.client.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to read device history: %w", err)
		}
		if len(members) == 0 {
			return 0, nil
		}
		args := make([]interface{}, len(members))
		for i, m := range members {
			args[i] = m
		}
		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, historyKey, args...)
		pipe.Del(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("failed to clear device history: %w", err)
		}
		return int64(len(members)), nil
	}

	total, err := s.client.ZCard(ctx, historyKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}

	keys := []string{historyKey}
	iter := s.client.Scan(ctx, 0, historyKey+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan history: %w", err)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return total, nil
}

func (s *Store) clearRealtime(ctx context.Context, deviceID string) (int64, error) {
	devices := []string{deviceID}
	if deviceID == "" {
		members, err := s.client.SMembers(ctx, realtimeIndex).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to list devices: %w", err)
		}
		devices = members
	}
	if len(devices) == 0 {
		return 0, nil
	}

	keys := make([]string, len(devices))
	args := make([]interface{}, len(devices))
	for i, d := range devices {
		keys[i] = realtimePrefix + d
		args[i] = d
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.SRem(ctx, realtimeIndex, args...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear realtime: %w", err)
	}
	return del.Val(), nil
}

// RemoteSettings настройки, которые читают сами устройства
type RemoteSettings struct {
	UpdateIntervalSeconds int       `json:"updateInterval"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// SaveRemoteSettings сохраняет интервал опроса для устройств
func (s *Store) SaveRemoteSettings(ctx context.Context, intervalSeconds int) error {
	if intervalSeconds <= 0 {
		return &models.ValidationError{Field: "updateInterval", Reason: "must be positive"}
	}
	err := s.client.HSet(ctx, remoteConfig,
		"updateInterval", intervalSeconds,
		"updatedAt", s.now().UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		metrics.RedisOperations.WithLabelValues("save_remote_settings", "error").Inc()
		return fmt.Errorf("failed to save remote settings: %w", err)
	}
	metrics.RedisOperations.WithLabelValues("save_remote_settings", "success").Inc()
	return nil
}

// GetRemoteSettings читает настройки устройств; нулевое значение если их нет
func (s *Store) GetRemoteSettings(ctx context.Context) (RemoteSettings, error) {
	vals, err := s.client.HGetAll(ctx, remoteConfig).Result()
	if err != nil {
		return RemoteSettings{}, fmt.Errorf("failed to get remote settings: %w", err)
	}
	var rs RemoteSettings
	if v, ok := vals["updateInterval"]; ok {
		if rs.UpdateIntervalSeconds, err = strconv.Atoi(v); err != nil {
			return RemoteSettings{}, fmt.Errorf("bad updateInterval %q: %w", v, err)
		}
	}
	if v, ok := vals["updatedAt"]; ok {
		if rs.UpdatedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return RemoteSettings{}, fmt.Errorf("bad updatedAt %q: %w", v, err)
		}
	}
	return rs, nil
}

// GetCounter получает количество записанных показаний по схеме
func (s *Store) GetCounter(ctx context.Context, kind models.Kind) (int64, error) {
	val, err := s.client.Get(ctx, counterPrefix+string(kind)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// Close закрывает соединение с Redis
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping проверяет доступность Redis
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetStats возвращает статистику пула соединений
func (s *Store) GetStats() map[string]interface{} {
	stats := s.client.PoolStats()

	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
