package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yogguru/trainer/internal/domain"
)

// evaluateMethod is the full RPC name served by the posture agent.
const evaluateMethod = "/yogguru.feedback.v1.FeedbackService/Evaluate"

// healthServiceName is the service name checked on the standard health endpoint.
const healthServiceName = "yogguru.feedback.v1.FeedbackService"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errNotServing               = errors.New("feedback agent not serving")
)

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GrpcClient evaluates postures through a remote agent service.
// Payloads travel as google.protobuf.Struct so the agent owns its schema.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// NewGrpcClient connects to the posture agent and waits until it is ready.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGrpcClientConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: false,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to feedback agent at %s: %w", cfg.Address, err)
	}

	// Fail fast on bad agent endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("feedback agent at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to feedback agent", "address", cfg.Address)
	return newGrpcClientFromConn(conn, cfg.Address, logger), nil
}

func newGrpcClientFromConn(conn *grpc.ClientConn, addr string, logger *slog.Logger) *GrpcClient {
	return &GrpcClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   addr,
		logger: logger,
	}
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
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks the agent through the standard gRPC health service.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: healthServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}
	return nil
}

// Evaluate sends one evaluation request to the agent.
func (c *GrpcClient) Evaluate(ctx context.Context, req Request) (domain.Verdict, error) {
	in, err := requestStruct(req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("encode feedback request: %w", err)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, evaluateMethod, in, out); err != nil {
		c.logger.Debug("Evaluate RPC failed", "error", err, "user_id", req.UserID)
		return domain.Verdict{}, fmt.Errorf("evaluate request failed: %w", err)
	}

	data, err := protojson.Marshal(out)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.GetFields()) == 0 {
		return domain.Verdict{}, ErrEmptyResponse
	}
	return decodeVerdict(data)
}

// requestStruct converts a request into the agent's Struct payload.
func requestStruct(req Request) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"pose_name":  req.PoseName,
		"measured":   angleFields(req.Measured),
		"target":     angleFields(req.Target),
		"language":   string(req.Language),
		"session_id": req.SessionID,
		"prompt":     buildPrompt(req),
	})
}

func angleFields(m domain.AngleMap) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
