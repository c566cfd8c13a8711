// Package streamclient wraps the chain's real-time stream RPC, dialed the
// same way consensus/client.Dial dials the consensus service: an insecure
// grpc.ClientConn chained with the otelgrpc client interceptors.
package streamclient

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const streamMethod = "/injective.stream.v1beta1.Stream/Stream"

// Client is a convenience wrapper around the chain stream connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target, chaining the standard tracing interceptors.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	opts = append(opts,
		grpc.WithChainUnaryInterceptor(otelgrpc.UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(otelgrpc.StreamClientInterceptor()),
	)
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Stream opens the server-stream RPC for req and returns a handle whose
// Recv method yields one StreamResponse per chain event.
func (c *Client) Stream(ctx context.Context, req *StreamRequest) (*Stream, error) {
	desc := &grpc.StreamDesc{StreamName: "Stream", ServerStreams: true}
	cs, err := c.conn.NewStream(ctx, desc, streamMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream{cs: cs}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Stream is a single open server-stream RPC.
type Stream struct {
	cs grpc.ClientStream
}

// Recv blocks for the next StreamResponse, returning io.EOF when the
// server closes the stream cleanly.
func (s *Stream) Recv() (*StreamResponse, error) {
	resp := new(StreamResponse)
	if err := s.cs.RecvMsg(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
