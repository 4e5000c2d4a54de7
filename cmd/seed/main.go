package main

import (
	"context"
	"flag"
	"log"
	"time"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/seed"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

func main() {
	admin := flag.String("admin", "", "email of a registered user to promote to admin")
	skipProducts := flag.Bool("skip-products", false, "do not insert the demo products")
	flag.Parse()

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	if !*skipProducts {
		n, err := seed.Products(ctx, db)
		if err != nil {
			logger.Fatal("Failed to seed products", zap.Int("added", n), zap.Error(err))
		}
		logger.Info("All products added successfully", zap.Int("count", n))
	}

	if *admin != "" {
		user, err := db.GetUserByEmail(ctx, *admin)
		if err != nil {
			logger.Fatal("Failed to find user", zap.String("email", *admin), zap.Error(err))
		}
		if err := db.SetRole(ctx, user.ID, models.RoleAdmin); err != nil {
			logger.Fatal("Failed to promote user", zap.String("email", *admin), zap.Error(err))
		}
		logger.Info("User promoted to admin", zap.String("user_id", user.ID))
	}
}
