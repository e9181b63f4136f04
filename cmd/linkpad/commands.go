package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/controller"
	"linkpad.com/p/internal/core"
	"linkpad.com/p/internal/model"
	"linkpad.com/p/internal/sockes5"
	"linkpad.com/p/internal/subscription"
	"linkpad.com/p/internal/utils"
)

func (a *app) dispatch(cmd string, args []string) error {
	switch cmd {
	case "run":
		return a.run(args)
	case "stop":
		return a.stop()
	case "status":
		return a.status()
	case "profile":
		return a.profile(args)
	case "config":
		return a.config(args)
	case "kernel":
		return a.kernelCmd(args)
	case "startup":
		return a.startupCmd(args)
	case "select":
		return a.selectProxy(args)
	case "probe":
		return a.probe(args)
	case "logs":
		return a.follow(nil)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("未知命令: %s", cmd)
	}
}

// run 启动内核并把内核日志写入应用日志，收到退出信号后清理
func (a *app) run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	withProxy := fs.Bool("proxy", false, "同时开启系统代理")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.logger.SetConsole(!a.silent)
	defer a.core.Close()

	if *withProxy || a.core.Settings().SystemProxyEnabled {
		if err := a.core.EnableSystemProxy(); err != nil {
			return err
		}
	} else if err := a.core.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Infof("linkpad 已启动，混合端口 %d，按 Ctrl+C 退出", a.core.Config().MixedPort)
	return a.follow(ctx)
}

// follow 跟随内核日志；ctx 为 nil 时等待退出信号
func (a *app) follow(ctx context.Context) error {
	if ctx == nil {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	return a.core.FollowKernelLog(ctx, func(level, message string) {
		if a.silent {
			return
		}
		fmt.Printf("[%s] %s\n", level, message)
	})
}

func (a *app) stop() error {
	if err := a.core.Stop(); err != nil {
		return err
	}
	fmt.Println("内核已停止")
	return nil
}

func (a *app) status() error {
	info := a.core.KernelInfo()
	pids := a.kernel.ManagedPids()
	cfg := a.core.Config()

	fmt.Printf("内核文件:   %s\n", orDash(info.BinaryPath))
	fmt.Printf("内核版本:   %s\n", orDash(info.Version))
	if !info.Found() {
		fmt.Printf("内核状态:   %s\n", info.Status)
	}
	if len(pids) > 0 {
		fmt.Printf("运行中:     pid %v\n", pids)
	} else {
		fmt.Println("运行中:     否")
	}
	fmt.Printf("运行配置:   mode=%s mixed-port=%d allow-lan=%v\n", cfg.Mode, cfg.MixedPort, cfg.AllowLan)
	fmt.Printf("系统代理:   %v\n", a.core.Settings().SystemProxyEnabled)
	if p := a.core.ActiveProfile(); p != nil {
		fmt.Printf("激活配置:   %s (%s)\n", p.Name, p.ID)
	} else {
		fmt.Println("激活配置:   -")
	}
	return nil
}

func (a *app) profile(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("缺少子命令: import|refresh|delete|use|list")
	}
	switch args[0] {
	case "import":
		fs := flag.NewFlagSet("profile import", flag.ContinueOnError)
		use := fs.Bool("use", false, "导入后设为激活")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("用法: profile import [-use] <url>")
		}
		p, err := a.core.ImportProfileURL(fs.Arg(0), *use)
		if err != nil {
			return err
		}
		printProfile(*p)
	case "refresh":
		id, err := single(args[1:], "profile refresh <id>")
		if err != nil {
			return err
		}
		p, err := a.core.RefreshProfile(id)
		if err != nil {
			return err
		}
		printProfile(*p)
	case "delete":
		id, err := single(args[1:], "profile delete <id>")
		if err != nil {
			return err
		}
		return a.core.DeleteProfile(id)
	case "use":
		id, err := single(args[1:], "profile use <id>")
		if err != nil {
			return err
		}
		return a.core.SetActiveProfile(id)
	case "list":
		for _, p := range a.core.Profiles() {
			printProfile(p)
		}
	default:
		return fmt.Errorf("未知子命令: profile %s", args[0])
	}
	return nil
}

func (a *app) config(args []string) error {
	if len(args) == 0 || args[0] == "show" {
		return printJSON(a.core.Config())
	}
	if args[0] != "set" {
		return fmt.Errorf("未知子命令: config %s", args[0])
	}

	cfg := a.core.Config()
	fs := flag.NewFlagSet("config set", flag.ContinueOnError)
	mode := fs.String("mode", string(cfg.Mode), "rule|global|direct")
	port := fs.Uint("port", uint(cfg.MixedPort), "混合端口")
	allowLan := fs.Bool("allow-lan", cfg.AllowLan, "允许局域网连接")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *port > 65535 {
		return apperr.InvalidConfig("端口超出范围: %d", *port)
	}

	cfg.Mode = model.Mode(*mode)
	cfg.MixedPort = uint16(*port)
	cfg.AllowLan = *allowLan
	if err := a.core.UpdateConfig(cfg); err != nil {
		return err
	}
	return printJSON(a.core.Config())
}

func (a *app) kernelCmd(args []string) error {
	if len(args) == 0 || args[0] == "info" {
		return printJSON(a.core.KernelInfo())
	}
	if args[0] != "install" {
		return fmt.Errorf("未知子命令: kernel %s", args[0])
	}
	upgrade, err := a.core.InstallLatestKernel()
	if err != nil {
		return err
	}
	return printJSON(upgrade)
}

func (a *app) startupCmd(args []string) error {
	if len(args) == 0 || args[0] == "show" {
		status, err := a.core.StartupStatus()
		if err != nil {
			return err
		}
		return printJSON(status)
	}
	if args[0] != "set" {
		return fmt.Errorf("未知子命令: startup %s", args[0])
	}

	current, err := a.core.StartupStatus()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("startup set", flag.ContinueOnError)
	auto := fs.Bool("auto", current.AutoLaunch, "登录时自动启动")
	silent := fs.Bool("silent", current.SilentStart, "静默启动")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	return a.core.ConfigureStartup(*auto, *silent)
}

// selectProxy 保存选择；其他实例启动的内核在运行时通过其控制器立即生效
func (a *app) selectProxy(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("用法: select <group> <proxy>")
	}
	if err := a.core.SelectProxy(args[0], args[1]); err != nil {
		return err
	}

	if rc, ok := a.runningKernelConfig(); ok {
		return controller.NewClient(rc.Controller, rc.Secret).SelectProxy(args[0], args[1])
	}
	return nil
}

// probe 经由运行中内核的混合端口测试目标
func (a *app) probe(targets []string) error {
	if _, ok := a.runningKernelConfig(); !ok {
		return apperr.ErrNotRunning
	}
	if len(targets) == 0 {
		targets = append([]string(nil), core.DefaultProbeTargets...)
	}

	client := &sockes5.SOCKS5Client{
		ProxyAddr: net.JoinHostPort("127.0.0.1", strconv.Itoa(int(a.core.Config().MixedPort))),
	}
	results := utils.NewPing(client.DialContext).TestAllDelay(targets)

	sort.Strings(targets)
	for _, target := range targets {
		if delay := results[target]; delay >= 0 {
			fmt.Printf("%-32s %d ms\n", target, delay)
		} else {
			fmt.Printf("%-32s 失败\n", target)
		}
	}
	return nil
}

// runningKernelConfig 存在运行中的内核时读取其 runtime.yaml
func (a *app) runningKernelConfig() (*subscription.RuntimeConfig, bool) {
	if len(a.kernel.ManagedPids()) == 0 {
		return nil, false
	}
	text, err := os.ReadFile(a.kernel.ConfigPath())
	if err != nil {
		a.log.Warnf("读取运行配置失败: %v", err)
		return nil, false
	}
	rc, err := subscription.BuildRuntimeConfig(string(text), a.core.Config())
	if err != nil {
		a.log.Warnf("解析运行配置失败: %v", err)
		return nil, false
	}
	return rc, true
}

func single(args []string, usage string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("用法: %s", usage)
	}
	return args[0], nil
}

func printProfile(p model.Profile) {
	marker := " "
	if p.Active {
		marker = "*"
	}
	fmt.Printf("%s %s  %s  节点 %d  代理组 %d  规则 %d  更新于 %s\n   %s\n",
		marker, p.ID, p.Name, p.NodeCount, p.GroupCount, p.RuleCount, p.UpdatedAt, p.SourceURL)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
