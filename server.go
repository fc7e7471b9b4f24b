package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"microdb/pkg/db"
)

// serve 每个连接一个会话，所有会话共享同一个 Engine
func serve(ctx context.Context, listener net.Listener, engine *db.Engine, log *zap.Logger) error {
	log.Info("listening", zap.String("addr", listener.Addr().String()))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("connection accept error", zap.Error(err))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleClient(ctx, conn, engine, log)
		}()
	}
}

func handleClient(ctx context.Context, conn net.Conn, engine *db.Engine, log *zap.Logger) {
	clientAddr := conn.RemoteAddr().String()
	log = log.With(zap.String("client", clientAddr))
	log.Info("new connection")
	defer conn.Close()

	// 服务器关闭时中断阻塞的读
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	parser := db.NewSQLParser(engine, conn)
	fmt.Fprint(conn, "Welcome to MicroDB Server!\n"+Prompt)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		sql := strings.TrimSpace(scanner.Text())
		if sql == "" {
			fmt.Fprint(conn, Prompt)
			continue
		}

		log.Debug("exec", zap.String("sql", sql))
		if !execute(parser, conn, sql) {
			break
		}
		fmt.Fprint(conn, Prompt)
	}
	log.Info("client disconnected")
}
