package cmd

import (
	"context"
	"fmt"

	"github.com/ponyo877/livebid/channel"
	"github.com/ponyo877/livebid/cli/adaptor"
	"github.com/ponyo877/livebid/cli/usecase"
	"github.com/spf13/viper"
)

// startSession connects to the hub and takes the livestream live.
func startSession(ctx context.Context, livestreamID string) (*usecase.SessionController, error) {
	identity := channel.Identity{
		LivestreamID:  livestreamID,
		ParticipantID: viper.GetString(sellerIDKey),
		DisplayName:   viper.GetString(sellerNameKey),
		Role:          channel.RoleSeller,
	}
	if !identity.IsValid() {
		return nil, fmt.Errorf("seller id and livestream id are required")
	}

	client := adaptor.NewChannelClient(grpcConn, identity, log)
	cfg := usecase.Config{
		LivestreamID:   livestreamID,
		SellerID:       identity.ParticipantID,
		SellerName:     identity.DisplayName,
		TickInterval:   viper.GetDuration(tickIntervalKey),
		CreditInterval: viper.GetDuration(creditIntervalKey),
		CallTimeout:    viper.GetDuration(requestTimeoutKey),
	}
	gate := adaptor.NewDeviceGate(viper.GetStringSlice(captureDevicesKey)...)
	s := usecase.NewSessionController(cfg, client, backend, log, usecase.WithMediaGate(gate))
	if err := s.StartSession(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}
