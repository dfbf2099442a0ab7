// Package main 提供独立的中继服务器
//
// 中继只负责让同一房间（URL 路径）内的节点交换协商消息，
// 节点之间的时间线数据走直连通道，不经过中继。
//
// 使用方法:
//
//	go run ./cmd/relay-server -addr :7070
//
// 节点连接 ws://<host>:7070/<房间>，指标暴露在 /metrics。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-timingmesh/internal/core/metrics"
	"github.com/dep2p/go-timingmesh/internal/core/relay/server"
	logcfg "github.com/dep2p/go-timingmesh/internal/util/logger"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
)

var logger = log.Logger("cmd/relay-server")

func main() {
	logcfg.Install(logcfg.ConfigFromEnv())

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 解析命令行参数
	addr := flag.String("addr", ":7070", "监听地址")
	heartbeat := flag.Duration("heartbeat", 10*time.Second, "WebSocket 心跳间隔")
	metricsPath := flag.String("metrics-path", "/metrics", "指标路径，空字符串表示关闭")
	statsInterval := flag.Duration("stats", 30*time.Second, "统计日志间隔")
	flag.Parse()

	clk := clock.New()
	srv, err := server.New(server.Config{HeartbeatInterval: *heartbeat}, clk)
	if err != nil {
		return fmt.Errorf("创建中继服务失败: %w", err)
	}

	mux := http.NewServeMux()
	if *metricsPath != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Subsystem: "relay",
				Name:      "rooms",
				Help:      "Number of rooms with at least one client.",
			}, func() float64 {
				rooms, _ := srv.Stats()
				return float64(rooms)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Subsystem: "relay",
				Name:      "clients",
				Help:      "Number of connected clients.",
			}, func() float64 {
				_, clients := srv.Stats()
				return float64(clients)
			}),
		)
		mux.Handle(*metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", srv)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("中继服务已启动", "addr", *addr, "heartbeat", *heartbeat)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("正在关闭中继服务")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Shutdown 不等待已劫持的 WebSocket 连接，需单独关闭
		_ = srv.Close()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		reportStats(ctx, clk, srv, *statsInterval)
		return nil
	})

	return g.Wait()
}

// reportStats 定期记录房间与连接数
func reportStats(ctx context.Context, clk clock.Clock, srv *server.Server, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rooms, clients := srv.Stats()
			logger.Info("中继统计", "rooms", rooms, "clients", clients)
		}
	}
}
