package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// FlowStatusMethod is the full gRPC method name of the flow monitor status call.
// The request is google.protobuf.Empty and the reply a google.protobuf.Struct
// with the same members as the HTTP flow status reply.
const FlowStatusMethod = "/pagedesk.flowmonitor.v1.FlowMonitor/GetFlowStatus"

var errConnectionShutdown = errors.New("connection shutdown")

// GRPCStatusSource reads status snapshots from a flow monitor sidecar over gRPC.
type GRPCStatusSource struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Ensure GRPCStatusSource implements StatusSource.
var _ StatusSource = (*GRPCStatusSource)(nil)

// NewGRPCStatusSource connects to the flow monitor at addr and waits until the
// connection is ready or connectTimeout elapses.
func NewGRPCStatusSource(addr string, callTimeout, connectTimeout time.Duration, logger *slog.Logger, opts ...grpc.DialOption) (*GRPCStatusSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create flow monitor client for %s: %w", addr, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("flow monitor at %s not ready: %w", addr, err)
	}

	logger.Info("Connected to flow monitor", "address", addr)
	return &GRPCStatusSource{conn: conn, addr: addr, timeout: callTimeout, logger: logger, now: time.Now}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// GetFlowStatus fetches one snapshot.
func (s *GRPCStatusSource) GetFlowStatus(ctx context.Context) (*domain.StatusSnapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, FlowStatusMethod, &emptypb.Empty{}, reply); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRemoteCall, FlowStatusMethod, err)
	}

	snap, err := decodeStatusStruct(reply, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRemoteCall, FlowStatusMethod, err)
	}
	return snap, nil
}

// Close closes the gRPC connection.
func (s *GRPCStatusSource) Close() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

func decodeStatusStruct(reply *structpb.Struct, now time.Time) (*domain.StatusSnapshot, error) {
	raw, err := reply.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	var fs flowStatusReply
	if err := json.Unmarshal(raw, &fs); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return fs.result(now).Unwrap()
}
