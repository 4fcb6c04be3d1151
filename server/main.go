package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/logger"
	"github.com/ponyo877/livebid/server/adaptor"
	"github.com/ponyo877/livebid/server/domain"
	"github.com/ponyo877/livebid/server/repository"
	"github.com/ponyo877/livebid/server/usecase"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const (
	grpcPortKey       = "grpc_port"
	httpAddrKey       = "http_addr"
	dbPathKey         = "db_path"
	amqpURLKey        = "amqp_url"
	tickKey           = "tick"
	timerBroadcastKey = "timer_broadcast_interval"
	logLevelKey       = "log_level"
	logFormatKey      = "log_format"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "livebid-server",
	Short:        "Livestream channel hub and backend",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, logger.New(viper.GetString(logLevelKey), viper.GetString(logFormatKey)))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./livebid-server.yaml)")
	flags.Int("grpc-port", 50051, "port of the channel hub")
	flags.String("http-addr", ":8080", "listen address of the REST backend")
	flags.String("db", "./livebid.db", "sqlite database path")
	flags.String("amqp-url", "", "RabbitMQ URL for finalized rounds; empty logs them instead")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (text, json)")

	viper.BindPFlag(grpcPortKey, flags.Lookup("grpc-port"))
	viper.BindPFlag(httpAddrKey, flags.Lookup("http-addr"))
	viper.BindPFlag(dbPathKey, flags.Lookup("db"))
	viper.BindPFlag(amqpURLKey, flags.Lookup("amqp-url"))
	viper.BindPFlag(logLevelKey, flags.Lookup("log-level"))
	viper.BindPFlag(logFormatKey, flags.Lookup("log-format"))

	viper.SetDefault(tickKey, time.Second)
	viper.SetDefault(timerBroadcastKey, 5*time.Second)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("livebid-server")
	}

	viper.SetEnvPrefix("livebid")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}
}

func serve(ctx context.Context, log *slog.Logger) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", viper.GetInt(grpcPortKey)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	conn, err := repository.Open(ctx, viper.GetString(dbPathKey))
	if err != nil {
		return err
	}
	defer conn.Close()
	rp := repository.NewRepository(conn)

	var publisher usecase.Publisher = adaptor.NewLogPublisher(log)
	if url := viper.GetString(amqpURLKey); url != "" {
		qp := adaptor.NewQueuePublisher(url, log)
		defer qp.Close()
		publisher = qp
	}

	uc := usecase.NewUsecase(rp, publisher, log)
	streamManager := domain.NewStreamManager()
	hub := usecase.NewStreamUsecase(rp, streamManager, usecase.HubConfig{
		Tick:                   viper.GetDuration(tickKey),
		TimerBroadcastInterval: viper.GetDuration(timerBroadcastKey),
	}, log)

	s := grpc.NewServer()
	channel.Register(s, adaptor.NewAdaptor(hub, log))
	reflection.Register(s)

	e := adaptor.NewEcho(adaptor.NewHandler(uc, hub, log))

	errc := make(chan error, 2)
	go func() {
		log.Info("channel hub is running", "port", viper.GetInt(grpcPortKey))
		errc <- s.Serve(lis)
	}()
	go func() {
		log.Info("backend is running", "addr", viper.GetString(httpAddrKey))
		if err := e.Start(viper.GetString(httpAddrKey)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errc:
		log.Error("server stopped", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("backend shutdown", "error", err)
	}
	// Open Connect streams never finish on their own.
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		s.Stop()
	}
	hub.Close()
	if err := streamManager.Cleanup(); err != nil {
		log.Warn("hub cleanup", "error", err)
	}
	return serveErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
