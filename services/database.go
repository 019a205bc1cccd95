package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"costmap-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrDatabaseDisabled - DB 환경 변수가 없음 (이벤트 로그 비활성)
var ErrDatabaseDisabled = errors.New("DB 환경 변수가 설정되지 않았습니다: MYSQL_HOST 또는 SQLITE_PATH")

// DB 인스턴스
var db *gorm.DB

// InitDatabase - 환경 변수로 DB 연결
//
// MYSQL_HOST 가 있으면 MySQL, 없고 SQLITE_PATH 가 있으면 SQLite.
// 둘 다 없으면 ErrDatabaseDisabled.
func InitDatabase() error {
	if host := os.Getenv("MYSQL_HOST"); host != "" {
		user := os.Getenv("MYSQL_USER")
		password := os.Getenv("MYSQL_PASSWORD")
		dbname := os.Getenv("MYSQL_DATABASE")
		if user == "" || password == "" || dbname == "" {
			return fmt.Errorf("MySQL 환경 변수가 모두 설정되지 않았습니다: MYSQL_HOST, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE")
		}

		port, err := strconv.Atoi(os.Getenv("MYSQL_PORT"))
		if err != nil || port == 0 {
			port = 3306 // 기본 포트
		}

		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			user, password, host, port, dbname)
		if err := OpenDatabase(mysql.Open(dsn)); err != nil {
			return err
		}
		log.Printf("📡 연결 정보: %s:%s@%s:%d/%s", user, maskSecret(password), host, port, dbname)
		return nil
	}

	if path := os.Getenv("SQLITE_PATH"); path != "" {
		if err := OpenDatabase(sqlite.Open(path)); err != nil {
			return err
		}
		log.Printf("📡 SQLite: %s", path)
		return nil
	}

	return ErrDatabaseDisabled
}

// OpenDatabase - 주어진 드라이버로 연결 후 마이그레이션
func OpenDatabase(dialector gorm.Dialector) error {
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("DB 연결 실패: %v", err)
	}

	// AutoMigrate - 테이블 자동 생성
	if err := conn.AutoMigrate(&models.MapEventLog{}); err != nil {
		return fmt.Errorf("마이그레이션 실패: %v", err)
	}

	db = conn
	log.Printf("✅ %s 연결 및 마이그레이션 완료", dialector.Name())
	return nil
}

// GetDB - GORM 인스턴스 반환 (비활성이면 nil)
func GetDB() *gorm.DB {
	return db
}

// CloseDatabase - 연결 종료
func CloseDatabase() {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	db = nil
}

func maskSecret(s string) string {
	if len(s) <= 3 {
		return "***"
	}
	return s[:3] + "***"
}
