package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/clipforge/internal/database"
)

const (
	// 写事务重试次数，吸收 SQLITE_BUSY、死锁等瞬态错误
	writeRetries = 3

	// 历史查询单次返回上限
	maxHistoryLimit = 50
)

// DefaultCacheRetention 转写缓存默认保留期
const DefaultCacheRetention = 30 * 24 * time.Hour

// MetricsRecorder 仓储查询耗时上报接口
type MetricsRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// Repository 持久层，封装处理历史、转写缓存、用户偏好与全局统计。
type Repository struct {
	pool    *database.PoolManager
	driver  string
	logger  *zap.Logger
	mu      sync.RWMutex
	metrics MetricsRecorder
}

// NewRepository 创建仓储
func NewRepository(pool *database.PoolManager, logger *zap.Logger) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Repository{
		pool:   pool,
		driver: pool.DB().Name(),
		logger: logger.With(zap.String("component", "storage")),
	}, nil
}

// SetMetrics 设置指标上报器
func (r *Repository) SetMetrics(m MetricsRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// observe 上报一次查询耗时。与 defer 搭配使用，start 在 defer 语句处求值。
func (r *Repository) observe(operation string, start time.Time) {
	r.mu.RLock()
	m := r.metrics
	r.mu.RUnlock()

	if m != nil {
		m.RecordDBQuery(r.driver, operation, time.Since(start))
	}
}

// AddProcessingRecord 写入一条处理历史，并在同一事务内累计全局统计。
// 成功后回填 record 的 ID 与 CreatedAt。
func (r *Repository) AddProcessingRecord(ctx context.Context, record *ProcessingRecord) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	if record.Status == "" {
		record.Status = StatusCompleted
	}
	defer r.observe("add_processing_record", time.Now())

	err := r.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		// 每次尝试用独立副本，避免重试时携带上一轮分配的主键
		row := *record
		row.ID = 0

		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := applyStatistics(tx, func(stats *AppStatistics) {
			stats.VideosProcessed++
			stats.TotalProcessingTime += row.ProcessingTime
			stats.FeaturesUsage = mergeFeatureUsage(stats.FeaturesUsage, row.FeaturesUsed)
		}); err != nil {
			return err
		}

		record.ID = row.ID
		record.CreatedAt = row.CreatedAt
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add processing record: %w", err)
	}

	r.logger.Debug("processing record added",
		zap.Int64("id", record.ID),
		zap.String("filename", record.Filename),
		zap.String("status", record.Status),
	)
	return nil
}

// AddTimeSaved 累计因缓存命中而省下的处理耗时（秒）
func (r *Repository) AddTimeSaved(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	defer r.observe("add_time_saved", time.Now())

	err := r.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		return applyStatistics(tx, func(stats *AppStatistics) {
			stats.TotalTimeSaved += seconds
		})
	})
	if err != nil {
		return fmt.Errorf("failed to add time saved: %w", err)
	}
	return nil
}

// History 返回最近的处理历史，新记录在前，最多 50 条。
func (r *Repository) History(ctx context.Context, limit int) ([]ProcessingRecord, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	defer r.observe("history", time.Now())

	var records []ProcessingRecord
	err := r.pool.DB().WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query processing history: %w", err)
	}
	return records, nil
}

// CacheTranscription 写入或刷新一条转写缓存。
// (file_hash, model_used) 冲突时覆盖为新数据并刷新 created_at。
func (r *Repository) CacheTranscription(ctx context.Context, entry *TranscriptionEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.FileHash == "" || entry.ModelUsed == "" {
		return fmt.Errorf("file hash and model are required")
	}
	defer r.observe("cache_transcription", time.Now())

	err := r.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		row := TranscriptionEntry{
			FileHash:       entry.FileHash,
			Filename:       entry.Filename,
			ModelUsed:      entry.ModelUsed,
			TranscriptData: entry.TranscriptData,
			CaptionsData:   entry.CaptionsData,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_hash"}, {Name: "model_used"}},
			DoUpdates: clause.AssignmentColumns([]string{"filename", "transcript_data", "captions_data", "created_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}

		entry.ID = row.ID
		entry.CreatedAt = row.CreatedAt
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache transcription: %w", err)
	}
	return nil
}

// CachedTranscription 按 (文件哈希, 模型) 查询转写缓存，未命中返回 (nil, nil)。
func (r *Repository) CachedTranscription(ctx context.Context, fileHash, model string) (*TranscriptionEntry, error) {
	defer r.observe("cached_transcription", time.Now())

	var entry TranscriptionEntry
	err := r.pool.DB().WithContext(ctx).
		Where(map[string]interface{}{"file_hash": fileHash, "model_used": model}).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transcription cache: %w", err)
	}
	return &entry, nil
}

// CleanupCache 删除早于保留期的转写缓存，返回删除行数。
// olderThan 非正值时取 DefaultCacheRetention。
func (r *Repository) CleanupCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = DefaultCacheRetention
	}
	defer r.observe("cleanup_cache", time.Now())

	var removed int64
	cutoff := time.Now().Add(-olderThan)
	err := r.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff).Delete(&TranscriptionEntry{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up transcription cache: %w", err)
	}

	if removed > 0 {
		r.logger.Info("transcription cache cleaned",
			zap.Int64("removed", removed),
			zap.Duration("older_than", olderThan),
		)
	}
	return removed, nil
}

// SetPreference 写入用户偏好，键已存在时覆盖。
func (r *Repository) SetPreference(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("preference key cannot be empty")
	}
	defer r.observe("set_preference", time.Now())

	err := r.pool.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		pref := UserPreference{Key: key, Value: value}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&pref).Error
	})
	if err != nil {
		return fmt.Errorf("failed to set preference %q: %w", key, err)
	}
	return nil
}

// Preference 读取用户偏好，未设置时返回 fallback。
func (r *Repository) Preference(ctx context.Context, key, fallback string) (string, error) {
	defer r.observe("get_preference", time.Now())

	var pref UserPreference
	err := r.pool.DB().WithContext(ctx).
		Where(map[string]interface{}{"key": key}).
		First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("failed to get preference %q: %w", key, err)
	}
	return pref.Value, nil
}

// Statistics 返回全局统计，尚无任何数据时返回零值。
func (r *Repository) Statistics(ctx context.Context) (*AppStatistics, error) {
	defer r.observe("statistics", time.Now())

	var stats AppStatistics
	err := r.pool.DB().WithContext(ctx).Last(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &AppStatistics{FeaturesUsage: map[string]int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}

	if stats.FeaturesUsage == nil {
		stats.FeaturesUsage = map[string]int{}
	}
	return &stats, nil
}

// applyStatistics 读-改-写全局统计行，必须在事务内调用。
func applyStatistics(tx *gorm.DB, mutate func(*AppStatistics)) error {
	var stats AppStatistics
	err := tx.Last(&stats).Error
	fresh := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !fresh {
		return err
	}
	if fresh {
		stats = AppStatistics{FeaturesUsage: map[string]int{}}
	}

	mutate(&stats)
	stats.LastUpdated = time.Now()

	if fresh {
		return tx.Create(&stats).Error
	}
	return tx.Save(&stats).Error
}

// mergeFeatureUsage 把本次使用的功能累加进使用计数
func mergeFeatureUsage(usage map[string]int, features []string) map[string]int {
	if usage == nil {
		usage = make(map[string]int, len(features))
	}
	for _, f := range features {
		usage[f]++
	}
	return usage
}
