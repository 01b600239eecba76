package data

import (
	"fmt"
	"time"

	"github.com/muudzo/moometrics2/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabaseClient creates a GORM client for the dead-letter store.
// The dialect is chosen by data.database.driver ("mysql" or "postgres").
func NewDatabaseClient(c *conf.Data, l log.Logger) (*gorm.DB, func(), error) {
	helper := log.NewHelper(l)

	if c == nil || c.Database == nil {
		helper.Error("database configuration is missing")
		return nil, nil, fmt.Errorf("database configuration is required")
	}

	dialector, err := openDialector(c.Database)
	if err != nil {
		return nil, nil, err
	}

	gormLogger := logger.New(
		&gormLogAdapter{helper: helper},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		helper.Errorf("failed to connect to %s: %v", c.Database.Driver, err)
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", c.Database.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		helper.Errorf("failed to get sql.DB: %v", err)
		return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		helper.Errorf("failed to ping %s: %v", c.Database.Driver, err)
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping %s: %w", c.Database.Driver, err)
	}

	if c.Database.AutoMigrate {
		if err := db.AutoMigrate(&DeadLetterTask{}); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to migrate dead letter table: %w", err)
		}
	}

	helper.Infof("%s connection established successfully", c.Database.Driver)

	cleanup := func() {
		helper.Infof("closing %s connection", c.Database.Driver)
		if err := sqlDB.Close(); err != nil {
			helper.Errorf("failed to close %s: %v", c.Database.Driver, err)
		}
	}

	return db, cleanup, nil
}

func openDialector(c *conf.Data_Database) (gorm.Dialector, error) {
	switch c.Driver {
	case "mysql":
		return mysql.Open(c.Source), nil
	case "postgres":
		return postgres.Open(c.Source), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// gormLogAdapter adapts Kratos log.Helper to GORM logger interface.
type gormLogAdapter struct {
	helper *log.Helper
}

// Printf implements gorm/logger.Writer interface.
func (g *gormLogAdapter) Printf(format string, v ...interface{}) {
	g.helper.Warnf(format, v...)
}
