package grpcserver

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RealIPKey — ключ метаданных с адресом клиента, выставляемый прокси.
const RealIPKey = "x-real-ip"

// IPSubnetInterceptor пропускает только запросы, чей x-real-ip входит в доверенную подсеть.
func IPSubnetInterceptor(trustedSubnet *net.IPNet) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if trustedSubnet == nil {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "missing metadata")
		}

		values := md.Get(RealIPKey)
		if len(values) == 0 {
			return nil, status.Error(codes.PermissionDenied, "missing x-real-ip")
		}

		ip := net.ParseIP(strings.TrimSpace(values[0]))
		if ip == nil || !trustedSubnet.Contains(ip) {
			return nil, status.Error(codes.PermissionDenied, "ip not allowed")
		}

		return handler(ctx, req)
	}
}
