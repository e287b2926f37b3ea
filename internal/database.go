package internal

import (
	"fmt"

	"CERT-PDF/internal/config"
	"CERT-PDF/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB(cfg *config.Config, logger *zap.Logger) error {
	var err error
	DB, err = gorm.Open(mysql.Open(cfg.Database.DSN()), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(DB); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database connected and migrated",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName))
	return nil
}

// Migrate creates or updates every table the service owns. Existing rows are
// preserved.
func Migrate(db *gorm.DB) error {
	tables := []any{
		&models.PDFTemplate{},
		&models.CertificateConfig{},
		&models.GeneratedCertificate{},
		&models.ActivityLog{},
	}
	for _, t := range tables {
		if err := db.AutoMigrate(t); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", t, err)
		}
	}
	return nil
}

func CloseDB() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
