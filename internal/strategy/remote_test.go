package strategy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type fixedSource struct{ res SignalResult }

func (f fixedSource) Signal(context.Context, int, string, []float64) (SignalResult, error) {
	return f.res, nil
}

func startWorker(t *testing.T, src Source) *WorkerClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterSignalServer(srv, src)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := NewWorkerClient("passthrough:///bufnet", time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWorkerClientRoundTrip(t *testing.T) {
	client := startWorker(t, NewEngine(DefaultSet()))

	res, err := client.Signal(context.Background(), 1, "WETH", oversoldSeries())
	require.NoError(t, err)
	assert.Equal(t, Buy, res.Signal)
	assert.Equal(t, 0.85, res.Confidence)
	assert.Equal(t, 1, res.StrategyID)
	assert.Contains(t, res.Indicators, "rsi")
}

func TestWorkerClientRejectsMalformedSignal(t *testing.T) {
	client := startWorker(t, fixedSource{res: SignalResult{Signal: "MAYBE"}})

	_, err := client.Signal(context.Background(), 1, "WETH", []float64{1, 2, 3})
	assert.Error(t, err)
}

func TestProcessSignaler(t *testing.T) {
	ctx := context.Background()

	t.Run("bare token reply", func(t *testing.T) {
		p, err := StartProcess(ctx, []string{"sh", "-c", "echo READY; while read line; do echo sell; done"}, time.Second)
		require.NoError(t, err)
		defer p.Close()

		res, err := p.Signal(ctx, 1, "WETH", []float64{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, Sell, res.Signal)
		assert.Equal(t, 1, res.StrategyID)
	})

	t.Run("json reply", func(t *testing.T) {
		script := `echo READY; while read line; do echo '{"signal":"buy","confidence":0.6,"reason":"model"}'; done`
		p, err := StartProcess(ctx, []string{"sh", "-c", script}, time.Second)
		require.NoError(t, err)
		defer p.Close()

		res, err := p.Signal(ctx, 2, "WETH", []float64{1})
		require.NoError(t, err)
		assert.Equal(t, Buy, res.Signal)
		assert.Equal(t, 0.6, res.Confidence)
		assert.Equal(t, 2, res.StrategyID)
	})

	t.Run("unresponsive process times out", func(t *testing.T) {
		p, err := StartProcess(ctx, []string{"sh", "-c", "echo READY; while read line; do sleep 5; done"}, 100*time.Millisecond)
		require.NoError(t, err)
		defer p.Close()

		_, err = p.Signal(ctx, 1, "WETH", []float64{1})
		assert.ErrorIs(t, err, ErrSignalTimeout)
	})

	t.Run("exited process fails fast", func(t *testing.T) {
		p, err := StartProcess(ctx, []string{"sh", "-c", "echo READY"}, time.Second)
		require.NoError(t, err)
		defer p.Close()
		time.Sleep(200 * time.Millisecond)

		callCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			_, err := p.Signal(callCtx, 1, "WETH", []float64{1})
			done <- err
		}()

		select {
		case err := <-done:
			assert.Error(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("Signal blocked after the process exited")
		}
	})

	t.Run("error line", func(t *testing.T) {
		p, err := StartProcess(ctx, []string{"sh", "-c", "echo READY; while read line; do echo 'ERROR: bad input'; done"}, time.Second)
		require.NoError(t, err)
		defer p.Close()

		_, err = p.Signal(ctx, 1, "WETH", []float64{1})
		assert.Error(t, err)
	})
}
