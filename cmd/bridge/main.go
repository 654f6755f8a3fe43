package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "shelly2fronius/internal/adapter/actor"
	"shelly2fronius/internal/adapter/ha"
	"shelly2fronius/internal/config"
	"shelly2fronius/internal/core/actor"
	"shelly2fronius/internal/core/meterstate"
	"shelly2fronius/internal/server"
	"shelly2fronius/internal/util/actorutil"
	"shelly2fronius/pkg/mbtcp"
	"shelly2fronius/pkg/shelly3em"
	"shelly2fronius/pkg/sunspec"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, emulator *mbtcp.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	if err := emulator.Close(); err != nil {
		log.Printf("Emulator forced to shutdown with error: %v", err)
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// shared meter state
	store := meterstate.NewStore(meterstate.Policy{
		GridStaleness: time.Duration(cfg.SourceMeter.StalenessMillis) * time.Millisecond,
		BiasStaleness: time.Duration(cfg.HomeAssistant.StalenessMillis) * time.Millisecond,
	})

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init source meter actor provider
	sourceMeterProv, err := sourceMeterActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(*cfg, store, sourceMeterProv, biasFetcherProvider(cfg),
			mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	// emulated meter served over Modbus-TCP
	device := sunspec.NewDevice(store.LiveValues)
	emulator := mbtcp.NewServer(device, mbtcp.ServerConfig{}, logger)
	emulatorListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Emulator.Port))
	if err != nil {
		panic(fmt.Sprintf("emulator bind error: %s", err))
	}
	go func() {
		if err := emulator.Serve(emulatorListener); err != nil {
			logger.Error("emulator server error", zap.Error(err))
		}
	}()

	server := server.NewServer(*cfg, ctx, pid, store)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, emulator, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SHELLY2FRONIUS_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SHELLY2FRONIUS_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("shelly2fronius")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	if cfg.MQTT.Enable {
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic
	}

	// check bounds
	if cfg.SourceMeter.Host == "" {
		return nil, errors.New("config param source_meter.host is required")
	}
	if cfg.SourceMeter.PollIntervalMillis < 100 {
		return nil, errors.New("config param source_meter.poll_interval_millis should be >= 100")
	}
	if cfg.HomeAssistant.Enabled() && cfg.HomeAssistant.PollIntervalMillis < 100 {
		return nil, errors.New("config param homeassistant.poll_interval_millis should be >= 100")
	}
	if cfg.HomeAssistant.Enabled() && cfg.HomeAssistant.Token == "" {
		return nil, errors.New("config param homeassistant.token is required")
	}
	if cfg.Emulator.UnitId > 255 {
		return nil, errors.New("config param emulator.unit_id should be <= 255")
	}

	return &cfg, nil
}

func sourceMeterActorProvider(cfg *config.Config, logger *zap.Logger) (actor.SourceMeterActorProvider, error) {

	reader, err := shelly3em.CreateShelly3EMReader(cfg.SourceMeter.Host,
		cfg.SourceMeter.Port, uint8(cfg.SourceMeter.UnitId), 1*time.Second, logger, nil)

	if err != nil {
		return nil, err
	}

	return func() *adactor.SourceMeterActor {
		return adactor.NewSourceMeterActor(reader, logger)
	}, nil
}

func biasFetcherProvider(cfg *config.Config) actor.BiasFetcherProvider {
	return func() actor.BiasFetcher {
		return ha.NewClient(cfg.HomeAssistant.BaseUrl, cfg.HomeAssistant.Token, 2*time.Second)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		if !cfg.MQTT.Enable {
			return adactor.NewTestMQTTActor(cfg, logger)
		}
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("emulator.port", 5502)
	viper.SetDefault("emulator.unit_id", 240)
	viper.SetDefault("source_meter.port", 502)
	viper.SetDefault("source_meter.unit_id", 1)
	viper.SetDefault("source_meter.poll_interval_millis", 1000)
	viper.SetDefault("source_meter.staleness_millis", 5000)
	viper.SetDefault("homeassistant.poll_interval_millis", 1000)
	viper.SetDefault("homeassistant.staleness_millis", 10000)
	viper.SetDefault("homeassistant.smooth_window", 0)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.base_topic", "shelly2fronius")
}

func safePrintConfig(cfg config.Config) {
	cfg.HomeAssistant.Token = "*redacted*"
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
