package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"feedmux/internal/feed"
	"feedmux/internal/logger"
)

// Recorder subscribes to symbols and persists every delivered sample plus
// periodic provider health snapshots. Feeds stay unaware of it; it is just
// another consumer of the aggregator.
type Recorder struct {
	db  *gorm.DB
	agg *feed.Aggregator

	flushEvery time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
}

type sampleModel struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	Symbol    string         `gorm:"index:idx_samples_symbol_ts,priority:1;size:16;not null"`
	Price     string         `gorm:"size:64;not null"`
	Ts        int64          `gorm:"index:idx_samples_symbol_ts,priority:2;not null"`
	Source    string         `gorm:"size:32"`
	CreatedAt int64          `gorm:"autoCreateTime:milli"`
	Extra     datatypes.JSON `gorm:"type:json"`
}

func (sampleModel) TableName() string { return "feed_samples" }

type providerStatsModel struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	Symbol    string         `gorm:"index;size:16;not null"`
	Ts        int64          `gorm:"index;not null"`
	Mode      string         `gorm:"size:16"`
	States    datatypes.JSON `gorm:"type:json"`
	CreatedAt int64          `gorm:"autoCreateTime:milli"`
}

func (providerStatsModel) TableName() string { return "feed_provider_stats" }

func New(path string, agg *feed.Aggregator, flushEvery time.Duration) (*Recorder, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("recorder path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&sampleModel{}, &providerStatsModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	if flushEvery <= 0 {
		flushEvery = 30 * time.Second
	}
	return &Recorder{db: db, agg: agg, flushEvery: flushEvery}, nil
}

// Start subscribes the recorder to each symbol and begins persisting.
// Call Stop to detach.
func (r *Recorder) Start(ctx context.Context, symbols []string) error {
	if r.cancel != nil {
		return fmt.Errorf("recorder already started")
	}
	subs := make([]*feed.Subscription, 0, len(symbols))
	for _, sym := range symbols {
		sub, err := r.agg.Subscribe(sym)
		if err != nil {
			for _, s := range subs {
				s.Cancel()
			}
			return fmt.Errorf("recorder subscribe %s: %w", sym, err)
		}
		subs = append(subs, sub)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx, subs)
	return nil
}

func (r *Recorder) run(ctx context.Context, subs []*feed.Subscription) {
	defer close(r.done)
	defer func() {
		for _, s := range subs {
			s.Cancel()
		}
	}()

	for _, sub := range subs {
		go r.consume(ctx, sub)
	}

	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sub := range subs {
				r.snapshotStats(sub.Symbol)
			}
		}
	}
}

func (r *Recorder) consume(ctx context.Context, sub *feed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-sub.C:
			if !ok {
				return
			}
			r.persist(sample)
		}
	}
}

func (r *Recorder) persist(sample feed.Sample) {
	row := sampleModel{
		Symbol: sample.Symbol,
		Price:  sample.Price.String(),
		Ts:     sample.Time.UnixMilli(),
		Source: sample.Source,
	}
	if err := r.db.Create(&row).Error; err != nil {
		logger.Errorf("[recorder] persist sample %s failed: %v", sample.Symbol, err)
	}
}

func (r *Recorder) snapshotStats(sym string) {
	states := r.agg.Controller().States(sym)
	if len(states) == 0 {
		return
	}
	raw, err := json.Marshal(states)
	if err != nil {
		return
	}
	mode, _ := r.agg.Controller().Mode(sym)
	row := providerStatsModel{
		Symbol: sym,
		Ts:     time.Now().UnixMilli(),
		Mode:   string(mode),
		States: datatypes.JSON(raw),
	}
	if err := r.db.Create(&row).Error; err != nil {
		logger.Errorf("[recorder] persist stats %s failed: %v", sym, err)
	}
}

// Samples returns the most recent persisted samples for sym, newest
// first.
func (r *Recorder) Samples(ctx context.Context, sym string, limit int) ([]feed.Sample, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []sampleModel
	err := r.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(strings.TrimSpace(sym))).
		Order("ts DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]feed.Sample, 0, len(rows))
	for _, row := range rows {
		price, err := parsePrice(row.Price)
		if err != nil {
			continue
		}
		out = append(out, feed.Sample{
			Symbol: row.Symbol,
			Price:  price,
			Time:   time.UnixMilli(row.Ts),
			Source: row.Source,
		})
	}
	return out, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// Stop detaches subscriptions and closes the database.
func (r *Recorder) Stop() error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
