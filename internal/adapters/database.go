package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// SchemaVersion describes the current database schema version. It must be incremented if a manual migration is needed.
var SchemaVersion uint64 = 1

// SysStat stores the current database schema version and the timestamp when it was applied.
type SysStat struct {
	MigratedAt    time.Time `gorm:"column:migrated_at"`
	SchemaVersion uint64    `gorm:"primaryKey,column:schema_version"`
}

// GormLogger is a custom logger for Gorm, making it use slog
type GormLogger struct {
	SlowThreshold           time.Duration
	SourceField             string
	IgnoreErrRecordNotFound bool
	Debug                   bool
	Silent                  bool

	prefix string
}

func NewLogger(slowThreshold time.Duration, debug bool) *GormLogger {
	return &GormLogger{
		SlowThreshold:           slowThreshold,
		Debug:                   debug,
		IgnoreErrRecordNotFound: true,
		Silent:                  false,
		SourceField:             "src",
		prefix:                  "GORM-SQL: ",
	}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	if level == logger.Silent {
		l.Silent = true
	} else {
		l.Silent = false
	}
	return l
}

func (l *GormLogger) Info(ctx context.Context, s string, args ...any) {
	if l.Silent {
		return
	}
	slog.InfoContext(ctx, l.prefix+s, args...)
}

func (l *GormLogger) Warn(ctx context.Context, s string, args ...any) {
	if l.Silent {
		return
	}
	slog.WarnContext(ctx, l.prefix+s, args...)
}

func (l *GormLogger) Error(ctx context.Context, s string, args ...any) {
	if l.Silent {
		return
	}
	slog.ErrorContext(ctx, l.prefix+s, args...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	attrs := []any{
		"rows", rows,
		"duration", elapsed,
	}

	if l.SourceField != "" {
		attrs = append(attrs, l.SourceField, utils.FileWithLineNum())
	}

	if err != nil && !(errors.Is(err, gorm.ErrRecordNotFound) && l.IgnoreErrRecordNotFound) {
		attrs = append(attrs, "error", err)
		slog.ErrorContext(ctx, l.prefix+sql, attrs...)
		return
	}

	if l.SlowThreshold != 0 && elapsed > l.SlowThreshold {
		slog.WarnContext(ctx, l.prefix+sql, attrs...)
		return
	}

	if l.Debug {
		slog.DebugContext(ctx, l.prefix+sql, attrs...)
	}
}

// NewDatabase creates a new database connection and returns a Gorm database instance.
func NewDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var gormDb *gorm.DB
	var err error

	switch cfg.Type {
	case config.DatabaseMySQL:
		gormDb, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
			Logger: NewLogger(cfg.SlowQueryThreshold, cfg.Debug),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open MySQL database: %w", err)
		}

		sqlDB, _ := gormDb.DB()
		sqlDB.SetConnMaxLifetime(time.Minute * 5)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetMaxOpenConns(10)
		err = sqlDB.Ping() // This DOES open a connection if necessary. This makes sure the database is accessible
		if err != nil {
			return nil, fmt.Errorf("failed to ping MySQL database: %w", err)
		}
	case config.DatabaseMsSQL:
		gormDb, err = gorm.Open(sqlserver.Open(cfg.DSN), &gorm.Config{
			Logger: NewLogger(cfg.SlowQueryThreshold, cfg.Debug),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlserver database: %w", err)
		}
	case config.DatabasePostgres:
		gormDb, err = gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
			Logger: NewLogger(cfg.SlowQueryThreshold, cfg.Debug),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open Postgres database: %w", err)
		}
	case config.DatabaseSQLite:
		if _, err = os.Stat(filepath.Dir(cfg.DSN)); os.IsNotExist(err) {
			if err = os.MkdirAll(filepath.Dir(cfg.DSN), 0700); err != nil {
				return nil, fmt.Errorf("failed to create database base directory: %w", err)
			}
		}
		gormDb, err = gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
			Logger:                                   NewLogger(cfg.SlowQueryThreshold, cfg.Debug),
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, _ := gormDb.DB()
		sqlDB.SetMaxOpenConns(1)
	}

	return gormDb, nil
}

// SqlRepo is a SQL database repository implementation.
// Currently, it supports MySQL, SQLite, Microsoft SQL and Postgresql database systems.
type SqlRepo struct {
	db *gorm.DB
}

// NewSqlRepository creates a new SqlRepo instance.
func NewSqlRepository(db *gorm.DB) (*SqlRepo, error) {
	repo := &SqlRepo{
		db: db,
	}

	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return repo, nil
}

func (r *SqlRepo) migrate() error {
	slog.Debug("running migration: sys-stat", "result", r.db.AutoMigrate(&SysStat{}))
	slog.Debug("running migration: user", "result", r.db.AutoMigrate(&domain.User{}))
	slog.Debug("running migration: user preferences", "result", r.db.AutoMigrate(&domain.UserPreference{}))
	slog.Debug("running migration: user groups", "result", r.db.AutoMigrate(&domain.UserGroup{}))
	slog.Debug("running migration: former user groups", "result", r.db.AutoMigrate(&domain.FormerUserGroup{}))

	existingSysStat := SysStat{}
	r.db.Where("schema_version = ?", SchemaVersion).First(&existingSysStat)
	if existingSysStat.SchemaVersion == 0 {
		sysStat := SysStat{
			MigratedAt:    time.Now(),
			SchemaVersion: SchemaVersion,
		}
		if err := r.db.Create(&sysStat).Error; err != nil {
			return fmt.Errorf("failed to write sysstat entry for schema version %d: %w", SchemaVersion, err)
		}
		slog.Debug("sys-stat entry written", "schema_version", SchemaVersion)
	}

	return nil
}

// region users

// GetUser returns the user with the given id, including preference and group rows.
// If no user is found, an error domain.ErrNotFound is returned.
func (r *SqlRepo) GetUser(ctx context.Context, id domain.UserIdentifier) (*domain.User, error) {
	var user domain.User

	err := r.db.WithContext(ctx).
		Preload("Preferences").
		Preload("Groups").
		Preload("FormerGroups").
		First(&user, "identifier = ?", id).Error

	if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetAllUsers returns all users, without preference and group associations.
func (r *SqlRepo) GetAllUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User

	err := r.db.WithContext(ctx).Find(&users).Error
	if err != nil {
		return nil, err
	}

	return users, nil
}

// SaveUser updates the user with the given id.
// If no user is found, a new user is created.
func (r *SqlRepo) SaveUser(
	ctx context.Context,
	id domain.UserIdentifier,
	updateFunc func(u *domain.User) (*domain.User, error),
) error {
	userInfo := domain.GetUserInfo(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := r.getOrCreateUser(userInfo, tx, id)
		if err != nil {
			return err // return any error will roll back
		}

		user, err = updateFunc(user)
		if err != nil {
			return err
		}

		err = r.upsertUser(userInfo, tx, user)
		if err != nil {
			return err
		}

		// return nil will commit the whole transaction
		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

// DeleteUser deletes the user with the given id and all associated rows.
func (r *SqlRepo) DeleteUser(ctx context.Context, id domain.UserIdentifier) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_identifier = ?", id).Delete(&domain.UserPreference{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_identifier = ?", id).Delete(&domain.UserGroup{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.User{Identifier: id}).Error
	})
	if err != nil {
		return err
	}

	return nil
}

func (r *SqlRepo) getOrCreateUser(ui *domain.ContextUserInfo, tx *gorm.DB, id domain.UserIdentifier) (
	*domain.User,
	error,
) {
	var user domain.User

	// userDefaults will be applied to newly created user records
	userDefaults := domain.User{
		BaseModel: domain.BaseModel{
			CreatedBy: ui.UserId(),
			UpdatedBy: ui.UserId(),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		Identifier: id,
	}

	err := tx.Attrs(userDefaults).Preload("Preferences").Preload("Groups").
		FirstOrCreate(&user, "identifier = ?", id).Error
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *SqlRepo) upsertUser(ui *domain.ContextUserInfo, tx *gorm.DB, user *domain.User) error {
	user.UpdatedBy = ui.UserId()
	user.UpdatedAt = time.Now()

	err := tx.Omit("Preferences", "Groups", "FormerGroups").Save(user).Error
	if err != nil {
		return err
	}

	return nil
}

// endregion users

// region preferences

// GetUserPreferences returns all persisted preference rows for the given user.
func (r *SqlRepo) GetUserPreferences(ctx context.Context, id domain.UserIdentifier) (
	[]domain.UserPreference,
	error,
) {
	var prefs []domain.UserPreference

	err := r.db.WithContext(ctx).Where("user_identifier = ?", id).Find(&prefs).Error
	if err != nil {
		return nil, err
	}

	return prefs, nil
}

// SaveUserPreference creates or updates a single preference row.
func (r *SqlRepo) SaveUserPreference(ctx context.Context, pref domain.UserPreference) error {
	err := r.db.WithContext(ctx).Save(&pref).Error
	if err != nil {
		return err
	}

	return nil
}

// DeleteUserPreference removes a single preference row. Deleting a missing
// row is not an error.
func (r *SqlRepo) DeleteUserPreference(ctx context.Context, id domain.UserIdentifier, key string) error {
	err := r.db.WithContext(ctx).
		Where("user_identifier = ? AND pref_key = ?", id, key).
		Delete(&domain.UserPreference{}).Error
	if err != nil {
		return err
	}

	return nil
}

// endregion preferences

// region groups

// GetUserGroups returns the current local group memberships of the given user.
func (r *SqlRepo) GetUserGroups(ctx context.Context, id domain.UserIdentifier) ([]domain.UserGroup, error) {
	var groups []domain.UserGroup

	err := r.db.WithContext(ctx).Where("user_identifier = ?", id).Find(&groups).Error
	if err != nil {
		return nil, err
	}

	return groups, nil
}

// AddUserGroup adds a local group membership. Adding an existing membership is not an error.
func (r *SqlRepo) AddUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error {
	membership := domain.UserGroup{
		UserIdentifier: string(id),
		Group:          group,
		CreatedAt:      time.Now(),
	}

	err := r.db.WithContext(ctx).
		Where("user_identifier = ? AND group_name = ?", id, group).
		FirstOrCreate(&membership).Error
	if err != nil {
		return err
	}

	return nil
}

// RemoveUserGroup removes a local group membership.
func (r *SqlRepo) RemoveUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error {
	err := r.db.WithContext(ctx).
		Where("user_identifier = ? AND group_name = ?", id, group).
		Delete(&domain.UserGroup{}).Error
	if err != nil {
		return err
	}

	return nil
}

// GetFormerUserGroups returns the append-only history of past group memberships.
func (r *SqlRepo) GetFormerUserGroups(ctx context.Context, id domain.UserIdentifier) (
	[]domain.FormerUserGroup,
	error,
) {
	var formerGroups []domain.FormerUserGroup

	err := r.db.WithContext(ctx).Where("user_identifier = ?", id).Find(&formerGroups).Error
	if err != nil {
		return nil, err
	}

	return formerGroups, nil
}

// RecordFormerUserGroup appends a former-group record. Recording the same
// group twice keeps a single history entry.
func (r *SqlRepo) RecordFormerUserGroup(ctx context.Context, id domain.UserIdentifier, group string) error {
	record := domain.FormerUserGroup{
		UserIdentifier: string(id),
		Group:          group,
		CreatedAt:      time.Now(),
	}

	err := r.db.WithContext(ctx).
		Where("user_identifier = ? AND group_name = ?", id, group).
		FirstOrCreate(&record).Error
	if err != nil {
		return err
	}

	return nil
}

// endregion groups
