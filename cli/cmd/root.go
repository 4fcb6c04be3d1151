package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ponyo877/livebid/cli/adaptor"
	"github.com/ponyo877/livebid/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	cfgFile  string
	log      *slog.Logger
	backend  *adaptor.BackendClient
	grpcConn *grpc.ClientConn
)

const (
	grpcServerAddressKey = "grpc_server_address"
	apiURLKey            = "api_url"
	sellerIDKey          = "seller_id"
	sellerNameKey        = "seller_name"
	logLevelKey          = "log_level"
	logFormatKey         = "log_format"
	logFileKey           = "log_file"
	requestTimeoutKey    = "request_timeout"
	tickIntervalKey      = "tick_interval"
	creditIntervalKey    = "credit_interval"
	captureDevicesKey    = "capture_devices"
)

var rootCmd = &cobra.Command{
	Use:   "livebid",
	Short: "Seller control surface for live auctions",
	Long: `livebid runs a seller's livestream session: it keeps the channel to the
hub open, runs timed bidding rounds, reconciles chat and presence, and
ends the stream when the credit balance runs out.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger()
		if err != nil {
			return err
		}
		log = l
		backend = adaptor.NewBackendClient(viper.GetString(apiURLKey), viper.GetDuration(requestTimeoutKey), log)

		conn, err := grpc.NewClient(viper.GetString(grpcServerAddressKey), grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("did not connect to channel hub: %w", err)
		}
		grpcConn = conn
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if grpcConn != nil {
			return grpcConn.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.livebid.yaml)")
	rootCmd.PersistentFlags().String("grpc-server", "localhost:50051", "address of the channel hub")
	rootCmd.PersistentFlags().String("api-url", "http://localhost:8080", "base URL of the livestream backend")
	rootCmd.PersistentFlags().String("seller-id", "", "seller id presented to the hub")
	rootCmd.PersistentFlags().String("seller-name", "", "display name shown to viewers")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	viper.BindPFlag(grpcServerAddressKey, rootCmd.PersistentFlags().Lookup("grpc-server"))
	viper.BindPFlag(apiURLKey, rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag(sellerIDKey, rootCmd.PersistentFlags().Lookup("seller-id"))
	viper.BindPFlag(sellerNameKey, rootCmd.PersistentFlags().Lookup("seller-name"))
	viper.BindPFlag(logLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag(logFormatKey, rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag(logFileKey, rootCmd.PersistentFlags().Lookup("log-file"))

	viper.SetDefault(sellerIDKey, "seller")
	viper.SetDefault(requestTimeoutKey, 10*time.Second)
	viper.SetDefault(tickIntervalKey, time.Second)
	viper.SetDefault(creditIntervalKey, 25*time.Minute)
	viper.SetDefault(captureDevicesKey, []string{})
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".livebid")
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

func newLogger() (*slog.Logger, error) {
	level, format := viper.GetString(logLevelKey), viper.GetString(logFormatKey)
	path := viper.GetString(logFileKey)
	if path == "" {
		return logger.New(level, format), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return logger.NewWithWriter(f, level, format), nil
}
