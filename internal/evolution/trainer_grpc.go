package evolution

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	trainerService = "obelisk.trainer.v1.Trainer"
	fineTuneMethod = "/" + trainerService + "/FineTune"
	apiKeyHeader   = "x-api-key"
)

// FineTuneResponse is the trainer's reply.
type FineTuneResponse struct {
	ArtifactID string `json:"artifact_id"`
}

// GRPCTrainer calls a remote trainer service.
type GRPCTrainer struct {
	conn    *grpc.ClientConn
	apiKey  string
	timeout time.Duration
}

// NewGRPCTrainer dials target lazily. Extra options are appended to the
// defaults.
func NewGRPCTrainer(target, apiKey string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCTrainer, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trainer client for %s: %w", target, err)
	}
	return &GRPCTrainer{conn: conn, apiKey: apiKey, timeout: timeout}, nil
}

func (t *GRPCTrainer) FineTune(ctx context.Context, req TrainingRequest) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if t.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, apiKeyHeader, t.apiKey)
	}

	in, err := req.toProto()
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := t.conn.Invoke(ctx, fineTuneMethod, in, out); err != nil {
		return "", fmt.Errorf("fine-tuning cycle %s: %w", req.CycleID, err)
	}
	if out.GetValue() == "" {
		return "", fmt.Errorf("fine-tuning cycle %s: trainer returned no artifact id", req.CycleID)
	}
	return out.GetValue(), nil
}

// Close releases the underlying connection.
func (t *GRPCTrainer) Close() error {
	return t.conn.Close()
}

// TrainerServer is implemented by in-process trainer services.
type TrainerServer interface {
	FineTune(ctx context.Context, req *TrainingRequest) (*FineTuneResponse, error)
}

// RegisterTrainerServer exposes impl on s under the trainer service name.
func RegisterTrainerServer(s grpc.ServiceRegistrar, impl TrainerServer) {
	s.RegisterService(&trainerServiceDesc, impl)
}

var trainerServiceDesc = grpc.ServiceDesc{
	ServiceName: trainerService,
	HandlerType: (*TrainerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FineTune", Handler: fineTuneHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func fineTuneHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return serveFineTune(ctx, srv.(TrainerServer), in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fineTuneMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return serveFineTune(ctx, srv.(TrainerServer), req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func serveFineTune(ctx context.Context, impl TrainerServer, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	req, err := trainingRequestFromProto(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := impl.FineTune(ctx, req)
	if err != nil {
		return nil, err
	}
	return wrapperspb.String(resp.ArtifactID), nil
}

// UnaryAuthInterceptor rejects calls whose x-api-key does not match.
func UnaryAuthInterceptor(apiKey string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := validateAPIKey(ctx, apiKey); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func validateAPIKey(ctx context.Context, expected string) error {
	if expected == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get(apiKeyHeader)
	if len(values) == 0 {
		return status.Error(codes.Unauthenticated, "missing api key")
	}
	if values[0] != expected {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}
