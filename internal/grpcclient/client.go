package grpcclient

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/resilience"
)

// Status is a health serving status.
type Status = healthpb.HealthCheckResponse_ServingStatus

// Client wraps the health service of one instance.
type Client struct {
	conn   *grpc.ClientConn
	Health healthpb.HealthClient
	retry  resilience.RetryConfig
}

// New creates a client for addr. Extra options are appended to the defaults.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.InvalidArgument, "dial %s", addr)
	}
	return &Client{
		conn:   conn,
		Health: healthpb.NewHealthClient(conn),
		retry:  resilience.DefaultRetryConfig(),
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Check returns the serving status of service ("" for the process), retrying
// transient failures.
func (c *Client) Check(ctx context.Context, service string) (Status, error) {
	var status Status
	err := resilience.Retry(ctx, c.retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		defer cancel()
		resp, err := c.Health.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return apperrors.FromGRPCError(err)
		}
		status = resp.GetStatus()
		return nil
	})
	return status, err
}

// Watch streams status changes of service to fn until ctx ends or the server
// closes the stream.
func (c *Client) Watch(ctx context.Context, service string, fn func(Status)) error {
	stream, err := c.Health.Watch(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperrors.FromGRPCError(err)
		}
		fn(resp.GetStatus())
	}
}
