package metadata

import (
	"context"
	"crypto/x509"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// RequestFunc is implemented by generated gRPC client stubs that
// expose a single-RPC metadata lookup (the same
// "pb.NewInsightsClient(conn)"-shaped surface the licenses fetcher
// uses) — kept as a function type here rather than a concrete generated
// type so this package doesn't need to own a .proto of its own.
type RequestFunc func(ctx context.Context, conn *grpc.ClientConn, req Request) (Response, error)

// GRPCOracle fetches metadata over a gRPC connection, an alternate
// transport to PipeOracle's length-prefixed pipe framing for a
// metadata agent that runs as a network service rather than a local
// subprocess.
type GRPCOracle struct {
	conn *grpc.ClientConn
	call RequestFunc
}

// DialGRPCOracle dials addr using the system certificate pool (or, if
// insecureNoTLS is set, a plaintext connection for local testing) and
// returns an Oracle that issues lookups via call.
func DialGRPCOracle(addr string, call RequestFunc, insecureNoTLS bool) (*GRPCOracle, error) {
	var creds credentials.TransportCredentials
	if insecureNoTLS {
		creds = insecure.NewCredentials()
	} else {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("metadata: loading system cert pool: %w", err)
		}
		creds = credentials.NewClientTLSFromCert(pool, "")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("metadata: dialing %s: %w", addr, err)
	}
	return &GRPCOracle{conn: conn, call: call}, nil
}

func (o *GRPCOracle) Fetch(req Request) (Response, error) {
	return o.call(context.Background(), o.conn, req)
}

// Close releases the underlying connection.
func (o *GRPCOracle) Close() error {
	return o.conn.Close()
}
