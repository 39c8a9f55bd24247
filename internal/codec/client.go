package codec

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// GenerateMethod is the full gRPC method name of the generation call.
const GenerateMethod = "/arbiter.Generator/Generate"

// #region types
// GenerateRequest is everything the generator receives for one attempt.
type GenerateRequest struct {
	Prompt           string
	Persona          string
	PhaseInstruction string
	Playbook         string
	Voice            string
}

// GenerateResult holds the response from a Generate call.
type GenerateResult struct {
	Text      string
	LatencyMs int64
}

// Generator produces response text. Client and EchoGenerator implement it.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// #endregion types

// #region client-struct
// Client calls a remote generator over gRPC. Messages are google.protobuf.Struct,
// so the service needs no generated stubs on either side.
type Client struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn // closed by Close; nil when the connection was injected
}

var _ Generator = (*Client)(nil)

// #endregion client-struct

// #region constructor
// NewClient connects to the generator at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: conn}, nil
}

// NewClientWithConn wraps an existing connection. Close leaves it open.
func NewClientWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client created it.
func (c *Client) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

// #endregion close

// #region generate
// Generate sends one generation request. When the server omits latency_ms the
// client-observed round trip is reported instead.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	in, err := requestStruct(req)
	if err != nil {
		return GenerateResult{}, err
	}

	start := time.Now()
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, GenerateMethod, in, out); err != nil {
		return GenerateResult{}, fmt.Errorf("generate rpc: %w", err)
	}

	res := resultFromStruct(out)
	if _, ok := out.GetFields()["latency_ms"]; !ok {
		res.LatencyMs = time.Since(start).Milliseconds()
	}
	return res, nil
}

// #endregion generate

// #region encoding
func requestStruct(req GenerateRequest) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"prompt":            req.Prompt,
		"persona":           req.Persona,
		"phase_instruction": req.PhaseInstruction,
		"playbook":          req.Playbook,
		"voice":             req.Voice,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return s, nil
}

func requestFromStruct(s *structpb.Struct) GenerateRequest {
	f := s.GetFields()
	return GenerateRequest{
		Prompt:           f["prompt"].GetStringValue(),
		Persona:          f["persona"].GetStringValue(),
		PhaseInstruction: f["phase_instruction"].GetStringValue(),
		Playbook:         f["playbook"].GetStringValue(),
		Voice:            f["voice"].GetStringValue(),
	}
}

func resultStruct(res GenerateResult) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"text":       res.Text,
		"latency_ms": res.LatencyMs,
	})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return s, nil
}

func resultFromStruct(s *structpb.Struct) GenerateResult {
	f := s.GetFields()
	return GenerateResult{
		Text:      f["text"].GetStringValue(),
		LatencyMs: int64(f["latency_ms"].GetNumberValue()),
	}
}

// #endregion encoding
