package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"microdb/pkg/buffer"
	"microdb/pkg/config"
	"microdb/pkg/db"
	"microdb/pkg/logger"
)

const Prompt = "microdb> "

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	dataDir := flag.String("data", "", "data directory (overrides data_dir)")
	listen := flag.String("listen", "", "serve over TCP on this address instead of the interactive shell")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("microdb stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 缓冲池和指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bpm, err := buffer.NewBufferPool(cfg.BufferPages,
		buffer.WithLogger(log),
		buffer.WithRegisterer(reg))
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := startMetrics(cfg.MetricsAddr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// 2. 引擎；退出时刷盘
	engine, err := db.NewEngine(cfg.DataDir, bpm, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error("flush on shutdown failed", zap.Error(err))
		}
	}()

	log.Info("microdb started",
		zap.String("data_dir", cfg.DataDir),
		zap.Int("buffer_pages", cfg.BufferPages))

	if cfg.ListenAddr != "" {
		listener, err := net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
		}
		return serve(ctx, listener, engine, log)
	}
	return repl(ctx, engine, cfg.HistoryFile)
}

func startMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// repl 交互模式，一行一条语句
func repl(ctx context.Context, engine *db.Engine, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          Prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	var once sync.Once
	closeRL := func() { once.Do(func() { rl.Close() }) }
	defer closeRL()

	go func() {
		<-ctx.Done()
		closeRL()
	}()

	out := rl.Stdout()
	fmt.Fprintln(out, "Welcome to MicroDB. Type 'help' for commands.")
	parser := db.NewSQLParser(engine, out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		sql := strings.TrimSpace(line)
		if sql == "" {
			continue
		}
		if !execute(parser, out, sql) {
			return nil
		}
	}
}

// execute 执行一条语句并打印耗时；返回 false 表示会话结束
func execute(parser *db.SQLParser, out io.Writer, sql string) bool {
	start := time.Now()
	err := parser.ParseAndExecute(sql)
	duration := time.Since(start)

	switch {
	case errors.Is(err, db.ErrQuit):
		fmt.Fprintln(out, "Bye")
		return false
	case err != nil:
		fmt.Fprintf(out, "Error: %v\n", err)
	default:
		// 格式: (0.0023 sec)
		fmt.Fprintf(out, "(%.4f sec)\n", duration.Seconds())
	}
	return true
}
