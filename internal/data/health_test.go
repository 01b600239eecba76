package data

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPingableDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestHealthRepo_AllUp(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	d, _, err := NewData(nil, log.DefaultLogger, rdb, NewRedisCache(rdb))
	require.NoError(t, err)
	db, mock := setupPingableDB(t)
	mock.ExpectPing()

	checks := NewHealthRepo(d, db, log.DefaultLogger).Ping(context.Background())
	assert.NoError(t, checks[StoreRedis])
	assert.NoError(t, checks[StoreDatabase])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthRepo_Down(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	d, _, err := NewData(nil, log.DefaultLogger, rdb, NewRedisCache(rdb))
	require.NoError(t, err)
	db, mock := setupPingableDB(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mr.Close()

	checks := NewHealthRepo(d, db, log.DefaultLogger).Ping(context.Background())
	assert.Error(t, checks[StoreRedis])
	assert.ErrorContains(t, checks[StoreDatabase], "connection refused")
}

func TestHealthRepo_NotConfigured(t *testing.T) {
	d, _, err := NewData(nil, log.DefaultLogger, nil, nil)
	require.NoError(t, err)

	checks := NewHealthRepo(d, nil, log.DefaultLogger).Ping(context.Background())
	assert.Error(t, checks[StoreRedis])
	assert.Error(t, checks[StoreDatabase])
}
