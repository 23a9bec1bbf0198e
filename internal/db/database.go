package db

import (
	"fmt"

	"github.com/ubuygold/contentmill/internal/config"
	"github.com/ubuygold/contentmill/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Service is the persistence layer of the application: the credential vault,
// the project registry and the content pools.
type Service interface {
	KeyStore
	ProjectStore
	ContentStore
	GetDB() *gorm.DB
	Close() error
}

type service struct {
	db *gorm.DB
}

// Init opens the database connection based on the provided configuration and
// migrates the schema.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// sqlite has a single writer and every in-memory connection is its own database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(
		&model.Project{},
		&model.APIKey{},
		&model.Keyword{},
		&model.BlogTitle{},
		&model.AdsTitle{},
		&model.Article{},
		&model.AdsContent{},
		&model.BeinParagraph{},
		&model.InfoBlock{},
		&model.BulletItem{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

// NewService opens the database and wraps it in a Service.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	db, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return &service{db: db}, nil
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// randomOrder returns the dialect specific expression for uniform random ordering.
func (s *service) randomOrder() string {
	if s.db.Dialector.Name() == "mysql" {
		return "RAND()"
	}
	return "RANDOM()"
}
