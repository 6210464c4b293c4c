package database

import (
	"context"
	"testing"

	"ecofinds/internal/config"
	"ecofinds/internal/logger"
	"ecofinds/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&models.Product{}))
	assert.True(t, db.Migrator().HasTable(&models.ProductImage{}))
	assert.True(t, db.Migrator().HasTable(&models.User{}))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql", DSN: "x"}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), config.DatabaseConfig{Driver: "sqlite"}, nil)
	assert.Error(t, err)
}

func TestQueryLogsGoThroughAppLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Migrate(db))
	logs.TakeAll()

	var user models.User
	err = db.Where("email = ?", "alice@example.com").First(&user).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "missing rows are not logged")

	err = db.Exec("SELECT * FROM missing_table WHERE email = ?", "alice@example.com").Error
	require.Error(t, err)

	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "missing_table")
	assert.NotContains(t, entries[0].Message, "alice@example.com")
	assert.Equal(t, "gorm", entries[0].ContextMap()["component"])
}
