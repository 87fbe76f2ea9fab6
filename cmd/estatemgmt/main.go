package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"estatemgmt/app"
	"estatemgmt/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "配置文件路径（yaml/json/toml），为空时只读取 ESTATEMGMT_* 环境变量")
	startupTimeout := flag.Duration("startup-timeout", 30*time.Second, "连接事件存储与消息传输的最长等待时间")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "关闭连接的最长等待时间")
	flag.Parse()

	application := app.New(*configPath)
	engine := server.NewEngine(application,
		server.WithVersion(version),
		server.WithStartupTimeout(*startupTimeout),
		server.WithShutdownTimeout(*shutdownTimeout),
	)
	if err := engine.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", app.Name, err)
		os.Exit(1)
	}
}
