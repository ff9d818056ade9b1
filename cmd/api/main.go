package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/stock-engine/internal/application/inventory"
	"github.com/jhoicas/stock-engine/internal/application/usecase"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	domaininv "github.com/jhoicas/stock-engine/internal/domain/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
	infracache "github.com/jhoicas/stock-engine/internal/infrastructure/cache"
	"github.com/jhoicas/stock-engine/internal/infrastructure/memory"
	infrapdf "github.com/jhoicas/stock-engine/internal/infrastructure/pdf"
	"github.com/jhoicas/stock-engine/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/stock-engine/internal/interfaces/http"
	"github.com/jhoicas/stock-engine/pkg/config"
	"github.com/jhoicas/stock-engine/pkg/logger"
	"github.com/jhoicas/stock-engine/pkg/metrics"
	"github.com/jhoicas/stock-engine/pkg/resilience"
)

// storage repos y runner del backend elegido.
type storage struct {
	tx       inventory.TxRunner
	docs     repository.MovementDocumentRepository
	stock    repository.StockRepository
	moves    repository.InventoryMovementRepository
	products repository.ProductRepository
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("storage", cfg.Storage.Driver).
		Msg("iniciando aplicación")

	ctx := context.Background()
	st := openStorage(ctx, cfg, log)
	defer st.close()

	m := metrics.New("stock_engine")

	var cache inventory.AvailabilityCache = inventory.NoopAvailabilityCache{}
	if cfg.Redis.Addr != "" {
		rc := infracache.NewRedisAvailabilityCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis no disponible, caché deshabilitada")
		} else {
			cache = rc
			defer rc.Close()
		}
	}

	policy := buildPolicy(cfg.Engine)
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Engine.CommitMaxAttempts

	builder := inventory.NewMovementBuilder(st.tx, st.docs, st.products, st.stock, policy, log)
	recorder := inventory.NewMovementRecorder(st.tx, st.docs, policy, log,
		inventory.WithCache(cache),
		inventory.WithMetrics(m),
		inventory.WithRetry(retry),
	)
	query := inventory.NewQueryUseCase(st.stock, st.products, st.docs, st.moves, cache, m, log)
	receipt := inventory.NewReceiptUseCase(builder, infrapdf.NewMarotoReceiptRenderer(cfg.App.Name))

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Stock Engine API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Builder:   builder,
		Recorder:  recorder,
		Query:     query,
		Receipt:   receipt,
		Products:  usecase.NewProductUseCase(st.products, st.stock),
		Logger:    log,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) storage {
	if cfg.Storage.Driver == "memory" {
		s := memory.NewSeeded()
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
		return storage{
			tx: s, docs: s.Documents(), stock: s.Stock(), moves: s.Movements(), products: s.Products(),
			close: func() {},
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	if cfg.Storage.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			log.Fatal().Err(err).Msg("migración del esquema")
		}
	}
	return storage{
		tx:       postgres.NewTxRunner(pool),
		docs:     postgres.NewMovementDocumentRepository(pool),
		stock:    postgres.NewStockRepository(pool),
		moves:    postgres.NewInventoryMovementRepository(pool),
		products: postgres.NewProductRepository(pool),
		close:    pool.Close,
	}
}

func buildPolicy(cfg config.EngineConfig) domaininv.Policy {
	p := domaininv.DefaultPolicy().WithReturnSerialStatus(entity.SerialStatus(cfg.ReturnSerialStatus))
	p.AllowOverpayment = cfg.AllowOverpayment
	if cfg.ExpiryWarningDays > 0 {
		p.ExpiryWarningDays = cfg.ExpiryWarningDays
	}
	if b := entity.DiscountBase(cfg.InboundDiscountBase); b == entity.DiscountOnSubtotal || b == entity.DiscountOnSubtotalPlusTax {
		p.DiscountBase[entity.DirectionInbound] = b
	}
	if b := entity.DiscountBase(cfg.OutboundDiscountBase); b == entity.DiscountOnSubtotal || b == entity.DiscountOnSubtotalPlusTax {
		p.DiscountBase[entity.DirectionOutbound] = b
	}
	return p
}
