// Package main 提供 timingmesh 命令行节点
//
// 加入一个时间线网格，打印 change/adjust 通知，并从标准输入读取更新：
//
//	timingmesh -relay ws://127.0.0.1:7070 demo
//	> pos=0 vel=1
//
// 配置优先级：默认值 < -config 文件 < TIMINGMESH_* 环境变量 < 命令行参数。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-timingmesh"
	logcfg "github.com/dep2p/go-timingmesh/internal/util/logger"
	"github.com/dep2p/go-timingmesh/pkg/lib/log"
	"github.com/dep2p/go-timingmesh/pkg/types"
)

var logger = log.Logger("cmd/timingmesh")

var (
	configFile = flag.String("config", "", "配置文件路径（JSON）")
	relayBase  = flag.String("relay", "", "中继基础地址，房间标识拼接其后")
	startPos   = flag.Float64("start", 0, "时间线起点（需配合 -bounded）")
	endPos     = flag.Float64("end", 0, "时间线终点（需配合 -bounded）")
	bounded    = flag.Bool("bounded", false, "启用 -start/-end 范围")
	quiet      = flag.Bool("quiet", false, "不打印 change 通知")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "用法: %s [参数] [房间标识或中继 URL]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logcfg.Install(logcfg.ConfigFromEnv())

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run(idOrURL string) error {
	cfg, err := loadConfig(*configFile, os.LookupEnv)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if *relayBase != "" {
		cfg.Relay.BaseURL = *relayBase
	}

	opts := []timingmesh.Option{timingmesh.WithConfig(cfg)}
	if *bounded {
		opts = append(opts, timingmesh.WithStartPosition(*startPos), timingmesh.WithEndPosition(*endPos))
	}

	p, err := timingmesh.New(idOrURL, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	fmt.Printf("已加入 %s\n", p.URL())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return printEvents(ctx, p) })
	g.Go(func() error { return readCommands(ctx, p, os.Stdin) })

	err = g.Wait()
	if derr := p.Destroy(); derr != nil && !errors.Is(derr, timingmesh.ErrAlreadyDestroyed) {
		logger.Warn("关闭失败", "error", derr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printEvents 打印通知，致命错误结束运行
func printEvents(ctx context.Context, p *timingmesh.Provider) error {
	fatal := make(chan error, 1)

	if !*quiet {
		if _, err := p.On(timingmesh.EventChange, func(evt any) {
			fmt.Printf("change  %s\n", evt.(types.EvtChange).Vector)
		}); err != nil {
			return err
		}
	}
	if _, err := p.On(timingmesh.EventAdjust, func(evt any) {
		fmt.Printf("adjust  skew=%.6fs\n", evt.(types.EvtAdjust).Skew)
	}); err != nil {
		return err
	}
	if _, err := p.On(timingmesh.EventReadyStateChange, func(evt any) {
		fmt.Printf("state   %s\n", evt.(types.EvtReadyStateChange).ReadyState)
	}); err != nil {
		return err
	}
	if _, err := p.On(timingmesh.EventError, func(evt any) {
		select {
		case fatal <- evt.(types.EvtError).Err:
		default:
		}
	}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-fatal:
		return fmt.Errorf("中继不可用: %w", err)
	}
}

// readCommands 逐行读取更新命令，空行打印当前状态
func readCommands(ctx context.Context, p *timingmesh.Provider, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
			return
		}
		scanErr <- io.EOF
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			if errors.Is(err, io.EOF) {
				// 标准输入关闭后继续同步，直到收到信号
				<-ctx.Done()
				return ctx.Err()
			}
			return err
		case line := <-lines:
			partial, err := parseUpdate(line)
			if errors.Is(err, errEmptyCommand) {
				fmt.Printf("vector  %s  skew=%.6fs  links=%d\n", p.Vector(), p.Skew(), p.Links())
				continue
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "无效命令: %v\n", err)
				continue
			}

			updateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = p.Update(updateCtx, partial)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
