package slaybot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	sqliteExecPragma = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
	dbOperationTimeout = 30 * time.Second
)

// ModelUnixTime is an embeddable model with Unix timestamps for
// creation and update, stored in milliseconds.
type ModelUnixTime struct {
	CreatedAt int64 `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// database wraps the GORM connection for write operations. sqlite only
// supports a single writer, so all writes are serialized behind a mutex
// on one long-lived connection (rather than reopening the store around
// each unit of work).
//
// The struct implements the DBI interface, which exists primarily so the
// store can be mocked in tests.
type database struct {
	db     *gorm.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// NewDatabase initializes a new database instance around the given GORM
// connection. If log is nil, slog.Default() is used.
func NewDatabase(db *gorm.DB, log *slog.Logger) DBI {
	if log == nil {
		log = slog.Default()
	}
	return &database{
		db:     db,
		logger: log.With(loggerNameKey, "writedb"),
	}
}

func (d *database) DB() *gorm.DB {
	return d.db
}

// withTimeout applies the default operation timeout when the caller's
// context has no deadline of its own.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dbOperationTimeout)
}

// CounterGet returns the counter row for the given guild, or nil if the
// guild has never had a counter initialized.
func (d *database) CounterGet(ctx context.Context, guildID string) (*Counter, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var counter Counter
	err := d.db.WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

// CounterUpsert inserts or replaces the counter row for a guild in a
// single statement. The write is committed before this returns.
func (d *database) CounterUpsert(
	ctx context.Context,
	guildID string,
	messageID string,
	count int64,
	active bool,
) (*Counter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	counter := Counter{
		GuildID:   guildID,
		MessageID: messageID,
		Count:     count,
		Active:    active,
	}
	rv := d.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: columnCounterGuildID}},
			DoUpdates: clause.AssignmentColumns(
				[]string{
					columnCounterMessageID,
					columnCounterCount,
					columnCounterActive,
					"updated_at",
				},
			),
		},
	).Create(&counter)
	if rv.Error != nil {
		return nil, rv.Error
	}
	return &counter, nil
}

// CounterAdjust applies delta to the guild's count as a single atomic
// UPDATE, re-activating the row, and returns the post-update row. Two
// racing button presses on the same guild both land: the read-modify-write
// happens inside the statement, not in the caller.
func (d *database) CounterAdjust(
	ctx context.Context,
	guildID string,
	delta int64,
) (*Counter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var counter Counter
	rv := d.db.WithContext(ctx).Model(&counter).Clauses(
		clause.Returning{},
	).Where("guild_id = ?", guildID).Updates(
		map[string]any{
			columnCounterCount:  gorm.Expr("count + ?", delta),
			columnCounterActive: true,
		},
	)
	if rv.Error != nil {
		return nil, rv.Error
	}
	if rv.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &counter, nil
}

// CounterDeactivate flags the guild's counter as inactive, leaving the
// count and message ID untouched so the value survives for a later
// re-initialize.
func (d *database) CounterDeactivate(ctx context.Context, guildID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rv := d.db.WithContext(ctx).Model(&Counter{}).Where(
		"guild_id = ?", guildID,
	).Update(columnCounterActive, false)
	if rv.Error != nil {
		return rv.Error
	}
	if rv.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ActiveCounters returns all counter rows currently flagged active, used
// to rebind increment/decrement controls at startup.
func (d *database) ActiveCounters(ctx context.Context) ([]Counter, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var counters []Counter
	err := d.db.WithContext(ctx).Where(
		"active = ?", true,
	).Order("guild_id asc").Find(&counters).Error
	return counters, err
}

func (d *database) Create(ctx context.Context, value any) (
	rowsAffected int64,
	err error,
) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rv := d.db.WithContext(ctx).Create(value)
	return rv.RowsAffected, rv.Error
}

func (d *database) Updates(ctx context.Context, model, values any) (
	rowsAffected int64,
	err error,
) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rv := d.db.WithContext(ctx).Model(model).Updates(values)
	return rv.RowsAffected, rv.Error
}

// DBI defines the interface for database operations. This is here primarily
// to enable mocking of the database operations for testing.
// [database] implements this interface for 'real' DB operations.
type DBI interface {
	DB() *gorm.DB

	// CounterGet returns the guild's counter row, or nil if absent
	CounterGet(ctx context.Context, guildID string) (*Counter, error)

	// CounterUpsert inserts or replaces a guild's counter row
	CounterUpsert(
		ctx context.Context,
		guildID string,
		messageID string,
		count int64,
		active bool,
	) (*Counter, error)

	// CounterAdjust atomically applies a delta to the guild's count
	CounterAdjust(ctx context.Context, guildID string, delta int64) (*Counter, error)

	// CounterDeactivate sets active=false, preserving count and message ID
	CounterDeactivate(ctx context.Context, guildID string) error

	// ActiveCounters lists rows with active=true
	ActiveCounters(ctx context.Context) ([]Counter, error)

	Create(ctx context.Context, value any) (rowsAffected int64, err error)
	Updates(ctx context.Context, model any, values any) (rowsAffected int64, err error)
}

// CreateDB initializes and returns a GORM sqlite connection, creating the
// parent directory if needed, applying the WAL pragmas and auto-migrating
// the bot's models.
func CreateDB(ctx context.Context, database string) (*gorm.DB, error) {
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     slog.LevelWarn,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, 500*time.Millisecond)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(ctx, "Initializing database", "database", database)

	parentDir := filepath.Dir(database)
	if parentDir != "" {
		if err := os.MkdirAll(parentDir, 0755); err != nil {
			if !errors.Is(err, os.ErrExist) {
				return nil, err
			}
		}
	}
	db, err := gorm.Open(
		sqlite.Open(database),
		&gorm.Config{
			Logger: gormLogger,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		},
	)
	if err != nil {
		return db, err
	}

	for _, pragma := range sqliteExecPragma {
		if err = db.WithContext(ctx).Exec(pragma).Error; err != nil {
			return db, err
		}
	}

	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&Counter{},
		&InteractionLog{},
	)
	if err != nil {
		return db, err
	}

	commitErr := txn.Commit().Error
	if commitErr != nil {
		return db, commitErr
	}

	return db, nil
}
