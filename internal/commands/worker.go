package commands

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"sentinel-core/internal/strategy"
)

var (
	workerAddr string

	signalWorkerCmd = &cobra.Command{
		Use:   "signal-worker",
		Short: "Serve strategy evaluation over gRPC",
		Long: `signal-worker exposes the local strategy engine as the remote signal
source used when SIGNAL_SOURCE=grpc.`,
		RunE: runSignalWorker,
	}
)

func init() {
	signalWorkerCmd.Flags().StringVar(&workerAddr, "addr", ":50051", "listen address")
}

func runSignalWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set, err := strategy.LoadConfig(cfg.StrategiesPath)
	if err != nil {
		log.Warn().Err(err).Msg("strategy config unreadable, using built-in defaults")
		set = strategy.DefaultSet()
	}

	lis, err := net.Listen("tcp", workerAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := grpc.NewServer()
	strategy.RegisterSignalServer(srv, strategy.NewEngine(set))

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	log.Info().Str("addr", lis.Addr().String()).Int("strategies", len(set.Strategies)).Msg("signal worker listening")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
