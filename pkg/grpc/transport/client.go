package transport

import (
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/KevoDB/wtdescent/pkg/grpc/service"
)

// Dial creates a client for the descent service at endpoint. The
// connection is established lazily on the first call.
func Dial(endpoint string, options Options, extra ...grpc.DialOption) (*service.Client, *grpc.ClientConn, error) {
	dialOptions := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                15 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if options.TLSEnabled {
		tlsConfig, err := LoadClientTLSConfig(options.CertFile, options.KeyFile, options.CAFile, options.SkipVerify)
		if err != nil {
			return nil, nil, err
		}
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if options.Timeout > 0 {
		dialOptions = append(dialOptions, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: options.Timeout,
		}))
	}

	conn, err := grpc.NewClient(endpoint, append(dialOptions, extra...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create client for %s: %w", endpoint, err)
	}
	return service.NewClient(conn), conn, nil
}
