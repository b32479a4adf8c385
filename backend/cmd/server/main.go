package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"carnivores-ballistics/backend/internal/ballistics"
	"carnivores-ballistics/backend/internal/game"
	"carnivores-ballistics/backend/internal/telemetry"
	"carnivores-ballistics/backend/internal/transport/ws"
	"carnivores-ballistics/backend/internal/world"
)

// healthService имя сервиса в gRPC health
const healthService = "ballistics"

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envUint(key string, def uint64) uint64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func main() {
	var (
		addr        = flag.String("addr", envOr("BALLISTICS_ADDR", ":8080"), "адрес HTTP/WebSocket сервера")
		grpcAddr    = flag.String("grpc", envOr("BALLISTICS_GRPC_ADDR", ":50051"), "адрес gRPC health (пусто - выключен)")
		tps         = flag.Int("tps", envInt("BALLISTICS_TPS", 60), "частота игрового цикла")
		mapSize     = flag.Int("map", envInt("BALLISTICS_MAP_SIZE", 256), "размер карты в тайлах")
		seed        = flag.Uint64("seed", envUint("BALLISTICS_SEED", 1), "зерно генерации мира")
		objects     = flag.Int("objects", envInt("BALLISTICS_OBJECTS", 200), "экземпляров каждого демо-объекта")
		heightfield = flag.Bool("heightfield", envBool("BALLISTICS_HEIGHTFIELD", true), "регистрировать поля высот разделов")
		logLevel    = flag.String("log-level", envOr("BALLISTICS_LOG_LEVEL", "info"), "уровень логирования")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("Неизвестный уровень логирования", "level", *logLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// gRPC health поднимается первым со статусом NOT_SERVING, пока мир строится
	var (
		grpcServer *grpc.Server
		healthSrv  *health.Server
	)
	if *grpcAddr != "" {
		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			logger.Fatal("Не удалось открыть порт gRPC", "addr", *grpcAddr, "err", err)
		}
		grpcServer = grpc.NewServer()
		healthSrv = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthSrv)
		reflection.Register(grpcServer)
		healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)

		go func() {
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("gRPC сервер остановлен с ошибкой", "err", err)
			}
		}()
		logger.Info("gRPC health запущен", "addr", *grpcAddr)
	}

	// Мир
	params := world.DefaultTerrainParams()
	params.Width, params.Height = *mapSize, *mapSize
	params.Seed = *seed
	m, err := world.NewGeneratedMap(params)
	if err != nil {
		logger.Fatal("Не удалось создать карту", "err", err)
	}
	world.PopulateDemo(m, *seed, *objects)

	opts := ballistics.DefaultSceneOptions()
	opts.RegionalHeightfield = *heightfield
	scene, err := ballistics.NewScene(m, opts, logger)
	if err != nil {
		logger.Fatal("Не удалось построить физический мир", "err", err)
	}

	// Игровой цикл и системы
	ticker := game.NewGameTicker(*tps, logger)
	tm := telemetry.NewTelemetryManager(logger)
	tm.SetPrintInterval(30 * time.Second)

	ballisticsSystem := game.NewBallisticsSystem(scene.Manager(), ticker, logger)
	wsServer := ws.NewWSServer(scene.Manager(), ticker, ws.DefaultConfig(), logger)
	wsServer.SetStatsProvider(func() map[string]interface{} {
		stats := ticker.GetStats()
		stats["systems"] = ticker.SystemsStats()
		stats["telemetry"] = tm.Stats()
		stats["ballistics"] = ballisticsSystem.Stats()
		return stats
	})

	scene.Manager().AddListener(tm)
	scene.Manager().AddListener(wsServer)
	scene.Manager().AddEffectTrigger(wsServer)

	ticker.RegisterSystem(ballisticsSystem)
	ticker.RegisterSystem(game.NewNetworkSyncSystem(ballisticsSystem, wsServer, ticker, logger))
	ticker.RegisterSystem(game.NewGameMetricsSystem(ticker, tm, logger))

	if err := ticker.Start(); err != nil {
		logger.Fatal("Не удалось запустить игровой цикл", "err", err)
	}

	mux := http.NewServeMux()
	wsServer.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP сервер остановлен с ошибкой", "err", err)
			stop()
		}
	}()

	if healthSrv != nil {
		healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	}
	logger.Info("Сервер запущен", "addr", *addr, "tps", *tps, "map", *mapSize, "heightfield", *heightfield)

	<-ctx.Done()
	logger.Info("Остановка сервера")

	if healthSrv != nil {
		healthSrv.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP сервер не остановился вовремя", "err", err)
	}
	wsServer.Close()

	// Снаряды уничтожаются до полей высот и физического мира
	ticker.Stop()
	if err := scene.Close(); err != nil {
		logger.Error("Ошибка выгрузки мира", "err", err)
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	logger.Info("Сервер остановлен")
}
