package admin

import (
	"context"
	"fmt"

	"github.com/shimingyah/pool"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"RelayRaft/raft"
)

// Client queries the admin service of one node over pooled connections.
type Client struct {
	address string
	pool    pool.Pool
}

func NewClient(address string) (*Client, error) {
	p, err := pool.New(address, pool.DefaultOptions)
	if err != nil {
		return nil, fmt.Errorf("admin: connection pool for %s: %w", address, err)
	}
	return &Client{address: address, pool: p}, nil
}

func (c *Client) Status(ctx context.Context) (raft.Status, error) {
	conn, err := c.pool.Get()
	if err != nil {
		return raft.Status{}, err
	}
	defer conn.Close()

	out := new(structpb.Struct)
	if err := conn.Value().Invoke(ctx, statusMethod, &emptypb.Empty{}, out); err != nil {
		return raft.Status{}, err
	}
	return decodeStatus(out)
}

// Healthy reports whether the node's admin service answers health checks
// as serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	conn, err := c.pool.Get()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn.Value()).Check(ctx,
		&healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) Address() string {
	return c.address
}

func (c *Client) Close() error {
	return c.pool.Close()
}
