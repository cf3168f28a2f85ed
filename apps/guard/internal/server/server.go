package server

import (
	"context"
	"net"
	"net/http"

	"EduServer/config"
	"EduServer/pkg/logger"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

// Server 对 http.Server 的轻量封装，集中管理启动和优雅关闭
type Server struct {
	httpServer *http.Server
}

// New 包装路由为 HTTP Server
func New(cfg config.ServerConfig, engine *gin.Engine) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Start 优雅关闭时返回 http.ErrServerClosed，调用方应视为正常退出
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// HealthServer 只注册 grpc health，供编排系统探针使用
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string
}

func NewHealthServer(addr string) *HealthServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthgrpc.RegisterHealthServer(gs, hs)
	return &HealthServer{grpcServer: gs, health: hs, addr: addr}
}

// SetServing 依赖就绪时置为 SERVING，停机前置为 NOT_SERVING
func (h *HealthServer) SetServing(serving bool) {
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthgrpc.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
}

// Start 阻塞直到 Stop
func (h *HealthServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}
	logger.Info(ctx, "gRPC 健康检查服务启动", logger.String("addr", h.addr))
	return h.grpcServer.Serve(lis)
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpcServer.GracefulStop()
}
