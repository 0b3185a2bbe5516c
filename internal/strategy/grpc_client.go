package strategy

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const evaluateMethod = "/sentinel.signal.v1.SignalService/Evaluate"

// WorkerClient asks a remote signal worker for decisions over gRPC.
// Messages are google.protobuf.Struct so no generated stubs are needed.
type WorkerClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewWorkerClient dials addr lazily; the first call establishes the connection.
func NewWorkerClient(addr string, timeout time.Duration, opts ...grpc.DialOption) (*WorkerClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial signal worker %s: %w", addr, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WorkerClient{conn: conn, timeout: timeout}, nil
}

func (w *WorkerClient) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// Signal forwards the price history to the worker and translates the reply.
func (w *WorkerClient) Signal(ctx context.Context, strategyID int, assetID string, prices []float64) (SignalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	resp := new(structpb.Struct)
	if err := w.conn.Invoke(ctx, evaluateMethod, encodeRequest(strategyID, assetID, prices), resp); err != nil {
		return SignalResult{}, fmt.Errorf("signal worker: %w", err)
	}
	return decodeResult(resp)
}

func encodeRequest(strategyID int, assetID string, prices []float64) *structpb.Struct {
	vals := make([]*structpb.Value, len(prices))
	for i, p := range prices {
		vals[i] = structpb.NewNumberValue(p)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"strategyId": structpb.NewNumberValue(float64(strategyID)),
		"assetId":    structpb.NewStringValue(assetID),
		"prices":     structpb.NewListValue(&structpb.ListValue{Values: vals}),
	}}
}

func decodeRequest(req *structpb.Struct) (int, string, []float64) {
	f := req.GetFields()
	list := f["prices"].GetListValue().GetValues()
	prices := make([]float64, len(list))
	for i, v := range list {
		prices[i] = v.GetNumberValue()
	}
	return int(f["strategyId"].GetNumberValue()), f["assetId"].GetStringValue(), prices
}

func encodeResult(res SignalResult) *structpb.Struct {
	ind := make(map[string]*structpb.Value, len(res.Indicators))
	for k, v := range res.Indicators {
		ind[k] = structpb.NewNumberValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"signal":       structpb.NewStringValue(string(res.Signal)),
		"confidence":   structpb.NewNumberValue(res.Confidence),
		"reason":       structpb.NewStringValue(res.Reason),
		"strategyId":   structpb.NewNumberValue(float64(res.StrategyID)),
		"strategyName": structpb.NewStringValue(res.StrategyName),
		"indicators":   structpb.NewStructValue(&structpb.Struct{Fields: ind}),
	}}
}

func decodeResult(resp *structpb.Struct) (SignalResult, error) {
	f := resp.GetFields()
	raw := f["signal"].GetStringValue()
	sig, ok := ParseSignal(raw)
	if !ok {
		return SignalResult{}, fmt.Errorf("malformed signal %q", raw)
	}
	res := SignalResult{
		Signal:       sig,
		Confidence:   f["confidence"].GetNumberValue(),
		Reason:       f["reason"].GetStringValue(),
		StrategyID:   int(f["strategyId"].GetNumberValue()),
		StrategyName: f["strategyName"].GetStringValue(),
	}
	if ind := f["indicators"].GetStructValue().GetFields(); len(ind) > 0 {
		res.Indicators = make(map[string]float64, len(ind))
		for k, v := range ind {
			res.Indicators[k] = v.GetNumberValue()
		}
	}
	return res, nil
}
