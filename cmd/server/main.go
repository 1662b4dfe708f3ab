package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"mantle/internal/auth"
	"mantle/internal/config"
	"mantle/internal/engine"
	"mantle/internal/manifest"
	"mantle/internal/schema"
	"mantle/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer st.Close()

	reg := manifest.NewRegistry()
	if err := manifest.LoadFile(cfg.Manifest.Path, reg); err != nil {
		log.Fatalf("load manifest: %v", err)
	}

	catalog, err := schema.Build(reg)
	if err != nil {
		log.Fatalf("build schema: %v", err)
	}

	if err := schema.NewMigrator(st).MigrateAll(ctx, catalog); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	eng := engine.New(st, reg, catalog, cfg.Paginator.DefaultPerPage)
	authSvc := auth.New(st, reg, cfg.Auth)

	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(authSvc.Middleware())

	app.Post("/auth/:entity/login", authSvc.LoginHandler)
	engine.RegisterRoutes(app, engine.NewHandler(eng, authSvc.IsAdmin))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Serving %d entities on %s", len(reg.AllEntities()), addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
