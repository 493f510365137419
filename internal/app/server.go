package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router       *gin.Engine
	container    *Container
	httpServer   *http.Server
	workerCtx    context.Context
	workerCancel context.CancelFunc
	workerWG     sync.WaitGroup
}

func NewServer(container *Container) *Server {
	workerCtx, workerCancel := context.WithCancel(context.Background())
	s := &Server{
		container:    container,
		workerCtx:    workerCtx,
		workerCancel: workerCancel,
	}
	if container.Config.Ops.Enabled {
		s.router = SetupRouter(container)
	}
	return s
}

// Start runs the poll loop, and the ops listener when enabled, until
// SIGINT or SIGTERM.
func (s *Server) Start() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	return s.run(sigChan)
}

func (s *Server) run(sigChan <-chan os.Signal) error {
	errChan := make(chan error, 2)
	s.startPollLoop(errChan)
	s.startOpsListener(errChan)

	select {
	case err := <-errChan:
		s.container.Logger.Error(s.workerCtx, "Agent stopping on error", zap.Error(err))
		_ = s.gracefulShutdown()
		return err
	case sig := <-sigChan:
		s.container.Logger.Info(s.workerCtx, "Shutdown signal received", zap.String("signal", sig.String()))
		return s.gracefulShutdown()
	}
}

// RunOnce runs a single poll cycle and releases resources. It fails when any
// agent's tick failed.
func (s *Server) RunOnce(ctx context.Context) error {
	defer s.container.Close()

	results, err := s.container.Scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		fields := []zap.Field{
			zap.String("employee_number", res.EmployeeNumber),
			zap.String("state", string(res.State)),
			zap.String("action", string(res.Action)),
			zap.Timep("target_out", res.Target),
		}
		if res.Err != nil {
			failed++
			s.container.Logger.Warn(ctx, "Agent tick failed", append(fields, zap.Error(res.Err))...)
			continue
		}
		s.container.Logger.Info(ctx, "Agent tick completed", fields...)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d agents failed", failed, len(results))
	}
	return nil
}

func (s *Server) startPollLoop(errChan chan<- error) {
	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		if err := s.container.Scheduler.Run(s.workerCtx); err != nil {
			errChan <- fmt.Errorf("poll loop failed: %w", err)
		}
	}()
}

func (s *Server) startOpsListener(errChan chan<- error) {
	if s.router == nil {
		return
	}
	addr := s.container.Config.Ops.Addr
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.container.Logger.Info(s.workerCtx, fmt.Sprintf("Starting ops listener on %s", addr),
		zap.String("env", s.container.Config.Env),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("ops listener failed: %w", err)
		}
	}()
}

func (s *Server) gracefulShutdown() error {
	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		s.container.Logger.Info(s.workerCtx, "Shutting down ops listener...")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.container.Logger.Error(s.workerCtx, "Ops listener shutdown failed", zap.Error(err))
		}
	}

	s.container.Logger.Info(s.workerCtx, "Stopping poll loop...")
	s.workerCancel()

	shutdownDone := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(shutdownDone)
	}()

	// An in-flight cycle is bounded by the HRIS timeout.
	select {
	case <-shutdownDone:
		s.container.Logger.Info(s.workerCtx, "Poll loop finished")
	case <-time.After(s.container.Config.HRIS.Timeout + 5*time.Second):
		s.container.Logger.Warn(s.workerCtx, "Poll loop did not finish in time, proceeding with shutdown")
	}

	s.container.Close()
	s.container.Logger.Info(s.workerCtx, "Agent exited gracefully")
	return nil
}
