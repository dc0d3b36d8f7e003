package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
	"go.uber.org/zap"
)

// Source wraps the SPIRE X509 source backing the server certificate.
type Source struct {
	x509   *workloadapi.X509Source
	logger *zap.Logger
}

// LoadServerTLS returns nil config and nil source when TLS is disabled.
func LoadServerTLS(ctx context.Context, enabled bool, socketPath string, logger *zap.Logger) (*tls.Config, *Source, error) {
	if !enabled {
		logger.Info("TLS is disabled")
		return nil, nil, nil
	}

	// SPIRE Workload API를 통해 X509 소스 생성
	x509Source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClientOptions(
			workloadapi.WithAddr(socketPath),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create X509Source: %w", err)
	}

	tlsConfig := tlsconfig.MTLSServerConfig(x509Source, x509Source, tlsconfig.AuthorizeAny())
	tlsConfig.MinVersion = tls.VersionTLS12

	logger.Info("SPIRE TLS configuration loaded",
		zap.String("socket_path", socketPath),
		zap.Bool("mtls_enabled", true))

	return tlsConfig, &Source{x509: x509Source, logger: logger}, nil
}

// Watch logs certificate status every interval until ctx is done.
// SPIRE rotates the SVID itself, this only reports on it.
func (s *Source) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svid, err := s.x509.GetX509SVID()
			if err != nil {
				s.logger.Error("Failed to get X509 SVID", zap.Error(err))
				continue
			}
			s.logger.Info("Certificate status",
				zap.String("spiffe_id", svid.ID.String()),
				zap.Time("expiry", svid.Certificates[0].NotAfter),
				zap.Duration("ttl", time.Until(svid.Certificates[0].NotAfter)))
		}
	}
}

func (s *Source) Close() error {
	if s == nil || s.x509 == nil {
		return nil
	}
	return s.x509.Close()
}
