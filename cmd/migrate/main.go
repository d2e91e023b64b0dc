package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bulk-sms-dispatch/internal/config"
)

// dispatchJob mirrors the dispatch_jobs table the postgres job store reads
// and writes. Migration-only model; the domain type stays free of ORM tags.
type dispatchJob struct {
	ID                   string `gorm:"type:uuid;primaryKey"`
	Total                int    `gorm:"not null"`
	Completed            int    `gorm:"not null;default:0"`
	SuccessCount         int    `gorm:"not null;default:0"`
	FailCount            int    `gorm:"not null;default:0"`
	CurrentBatch         int    `gorm:"not null;default:0"`
	TotalBatches         int    `gorm:"not null;default:0"`
	Percentage           int    `gorm:"not null;default:0"`
	Status               string `gorm:"type:varchar(16);not null;index"`
	EstimatedRemainingMS int64  `gorm:"column:estimated_remaining_ms;not null;default:0"`
	CreatedAt            time.Time
}

func (dispatchJob) TableName() string { return "dispatch_jobs" }

func main() {
	conf := config.FromEnv()
	if conf.DatabaseURL == "" {
		log.Fatal("❌ DATABASE_URL is required for migration")
	}

	fmt.Println("🔗 Connecting to database...")

	db, err := gorm.Open(postgres.Open(conf.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}

	sqlDB, _ := db.DB()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("❌ Failed to ping database: %v", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println("🔄 Running migrations...")

	if err := db.AutoMigrate(&dispatchJob{}); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	fmt.Println("✅ Migration complete!")
	fmt.Println("")
	fmt.Println("📊 Checking tables...")

	var tables []string
	db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables)

	if len(tables) == 0 {
		fmt.Println("⚠️  No tables found")
		os.Exit(1)
	}

	fmt.Println("✅ Tables created:")
	for _, table := range tables {
		fmt.Printf("  - %s\n", table)
	}

	fmt.Println("")
	fmt.Println("🎉 Database ready!")
}
