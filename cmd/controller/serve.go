package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/arbiter/internal/codec"
)

var listenAddr string

// #region serve
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the echo generator over gRPC",
	Long: `Starts an arbiter.Generator gRPC service backed by the local echo generator.
Point generator_addr (or ARBITER_GENERATOR_ADDR) at it to exercise the remote path
without a model.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "localhost:50051", "Listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listenAddr, err)
	}
	srv := grpc.NewServer()
	codec.RegisterGenerator(srv, codec.EchoGenerator{}.Generate)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down generator")
		srv.GracefulStop()
	}()

	logger.Info("generator listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// #endregion serve
