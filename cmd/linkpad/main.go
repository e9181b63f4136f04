package main

import (
	"flag"
	"fmt"
	"os"

	"linkpad.com/p/internal/config"
	"linkpad.com/p/internal/core"
	"linkpad.com/p/internal/database"
	"linkpad.com/p/internal/kernel"
	"linkpad.com/p/internal/logging"
	"linkpad.com/p/internal/release"
	"linkpad.com/p/internal/startup"
	"linkpad.com/p/internal/store"
	"linkpad.com/p/internal/subscription"
	"linkpad.com/p/internal/systemproxy"
)

const usage = `用法: linkpad [--silent-start] <命令> [参数]

命令:
  run [-proxy]                      启动内核并保持运行，Ctrl+C 退出
  stop                              停止本应用启动的内核（包括遗留进程）
  status                            显示内核、系统代理与配置文件状态
  profile import [-use] <url>       导入订阅
  profile refresh <id>              重新拉取订阅
  profile delete <id>               删除配置文件
  profile use <id>                  设为激活配置文件
  profile list                      列出配置文件
  config show                       显示内核运行配置
  config set [-mode m] [-port p] [-allow-lan=bool]
  kernel info                       显示内核文件与版本
  kernel install                    下载安装最新内核
  startup show                      显示开机启动状态
  startup set [-auto=bool] [-silent=bool]
  select <group> <proxy>            选择代理组中的节点
  probe [host:port ...]             通过本地代理测试连通性
  logs                              跟随内核日志
`

// app 命令行运行时依赖
type app struct {
	paths  config.Paths
	cfg    *config.Config
	logger *logging.Logger
	log    *logging.SafeLogger
	core   *core.Core
	kernel *kernel.Supervisor
	silent bool
}

func main() {
	global := flag.NewFlagSet("linkpad", flag.ContinueOnError)
	silent := global.Bool("silent-start", false, "静默启动（不向控制台输出日志）")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}

	a, err := newApp(*silent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.dispatch(args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		a.close()
		os.Exit(1)
	}
}

// newApp 读取启动配置，打开日志和数据库，组装 Core
func newApp(silent bool) (*app, error) {
	paths := config.DefaultPaths()
	if err := paths.Ensure(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(paths.ConfigFile())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.ResolvePath(paths, cfg.LogFile), false, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	log := logging.NewSafeLogger(logger)

	if err := database.InitDB(cfg.ResolvePath(paths, cfg.DatabaseFile)); err != nil {
		logger.Close()
		return nil, err
	}

	resolver := kernel.NewResolver(paths, cfg.ResolvePath(paths, cfg.KernelPath))
	supervisor := kernel.NewSupervisor(paths.RuntimeDir, resolver, log)
	st := store.NewStore()

	c := core.New(core.Options{
		Kernel:      supervisor,
		Installer:   release.NewInstaller(paths.InstallPath(), log),
		Ingestor:    subscription.NewSubscriptionManager(log),
		SystemProxy: systemproxy.NewSystemProxy(log),
		Startup:     startup.NewManager(),
		Settings:    st.Settings,
		Profiles:    st.Profiles,
		Log:         log,
	})
	c.Restore()

	return &app{
		paths:  paths,
		cfg:    cfg,
		logger: logger,
		log:    log,
		core:   c,
		kernel: supervisor,
		silent: silent,
	}, nil
}

func (a *app) close() {
	if a.logger == nil {
		return
	}
	database.CloseDB()
	a.logger.Close()
	a.logger = nil
}
