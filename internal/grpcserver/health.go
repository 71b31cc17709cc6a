// Package grpcserver публикует живость агента Sparkplug B через стандартный gRPC health-сервис.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName — имя сервиса в health-ответах. Пустое имя отвечает за сервер целиком.
const ServiceName = "sparkplug"

// LivenessFunc сообщает, жив ли агент (edge в состоянии online, хост объявил online).
type LivenessFunc func() bool

// Server — gRPC-сервер со статусом здоровья агента.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer создаёт сервер. trustedSubnet == nil пропускает все запросы.
func NewServer(trustedSubnet *net.IPNet, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := grpc.NewServer(grpc.UnaryInterceptor(IPSubnetInterceptor(trustedSubnet)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{srv: srv, health: hs, logger: logger}
	s.SetServing(false)
	return s
}

// SetServing переключает статус SERVING/NOT_SERVING.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Watch опрашивает alive раз в interval и обновляет статус до отмены ctx.
func (s *Server) Watch(ctx context.Context, alive LivenessFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := false
	for {
		live := alive()
		if live != last {
			s.logger.Info("health status changed", zap.Bool("serving", live))
			last = live
		}
		s.SetServing(live)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Serve принимает соединения на lis до GracefulStop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server started", zap.String("address", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe слушает TCP-адрес addr.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// GracefulStop переводит статус в NOT_SERVING и останавливает сервер.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

// ParseSubnet разбирает CIDR доверенной подсети; пустая строка даёт nil.
func ParseSubnet(cidr string) (*net.IPNet, error) {
	if cidr == "" {
		return nil, nil
	}
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted subnet %q: %w", cidr, err)
	}
	return subnet, nil
}
