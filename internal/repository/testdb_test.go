package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createUserForTest(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, Name: "test", PasswordHash: "hash", Role: domain.RoleUser}
	if err := NewUserRepository(db).Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func newSessionForTest(userID uint, key string, expiresIn time.Duration) *domain.Session {
	return &domain.Session{
		UserID:    userID,
		TokenHash: "hash-" + key,
		TokenID:   "tok-" + key,
		FamilyID:  "fam-" + key,
		ExpiresAt: time.Now().UTC().Add(expiresIn),
	}
}
