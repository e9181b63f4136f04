package core

import (
	"sync"

	"linkpad.com/p/internal/controller"
	"linkpad.com/p/internal/logging"
	"linkpad.com/p/internal/model"
)

// Kernel 内核进程管理
type Kernel interface {
	Start(configText string) error
	Stop() error
	IsRunning() bool
	Info() model.KernelInfo
	LogPath() string
	Close()
}

// Installer 内核下载安装
type Installer interface {
	InstallLatest() (*model.KernelUpgrade, error)
}

// Ingestor 订阅拉取与解析
type Ingestor interface {
	Fetch(sourceURL string) (string, error)
	FetchAndParse(sourceURL string) (*model.ProfileContent, string, error)
}

// SystemProxy 系统代理设置
type SystemProxy interface {
	Enable(host string, port int) error
	Disable() error
}

// Startup 开机启动注册
type Startup interface {
	Configure(autoLaunch, silentStart bool) error
	Status() (model.StartupStatus, error)
}

// SettingsStore 设置持久化
type SettingsStore interface {
	Load() (model.Settings, error)
	Save(settings model.Settings) error
}

// ProfileStore 配置文件列表持久化
type ProfileStore interface {
	Load() ([]model.Profile, error)
	Save(profiles []model.Profile) error
}

// Controller 运行中内核的控制接口
type Controller interface {
	SelectProxy(group, proxy string) error
}

// Options Core 依赖的组件，由调用方创建后注入
type Options struct {
	Kernel      Kernel
	Installer   Installer
	Ingestor    Ingestor
	SystemProxy SystemProxy
	Startup     Startup
	Settings    SettingsStore // 可为 nil，不持久化
	Profiles    ProfileStore  // 可为 nil，不持久化
	// NewController 内核启动后按运行配置中的地址创建控制器客户端，为 nil 时使用 REST 客户端
	NewController func(address, secret string) Controller
	Log           *logging.SafeLogger
}

// Core 控制面入口。
// 所有状态由一把互斥锁保护，每个公开操作在整个同步执行期间持有该锁，
// 网络请求与进程操作都是阻塞调用，是否放到后台由调用方决定。
type Core struct {
	mu sync.Mutex

	kernel        Kernel
	installer     Installer
	ingestor      Ingestor
	systemProxy   SystemProxy
	startup       Startup
	settingsStore SettingsStore
	profileStore  ProfileStore
	newController func(address, secret string) Controller
	log           *logging.SafeLogger

	settings     model.Settings
	profiles     []model.Profile
	running      bool
	proxyEnabled bool
	controller   Controller // 仅在内核运行时有效
}

// New 创建 Core。
// 参数：
//   - opts: 依赖组件
//
// 返回：使用默认设置、没有配置文件的 Core，需要时调用 Restore 载入持久化数据
func New(opts Options) *Core {
	newController := opts.NewController
	if newController == nil {
		newController = func(address, secret string) Controller {
			return controller.NewClient(address, secret)
		}
	}
	return &Core{
		kernel:        opts.Kernel,
		installer:     opts.Installer,
		ingestor:      opts.Ingestor,
		systemProxy:   opts.SystemProxy,
		startup:       opts.Startup,
		settingsStore: opts.Settings,
		profileStore:  opts.Profiles,
		newController: newController,
		log:           opts.Log,
		settings:      model.DefaultSettings(),
	}
}

// Restore 从存储载入设置和配置文件列表。
// 读取失败时记录日志并保留默认值；配置文件列表按 ReplaceProfiles 的规则规范化。
func (c *Core) Restore() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.settingsStore != nil {
		settings, err := c.settingsStore.Load()
		if err != nil {
			c.log.Warnf("Core: 读取设置失败，使用默认值: %v", err)
		} else {
			c.settings = normalizeSettings(settings)
		}
	}

	if c.profileStore != nil {
		profiles, err := c.profileStore.Load()
		if err != nil {
			c.log.Warnf("Core: 读取配置文件列表失败: %v", err)
			return
		}
		c.profiles = normalizeProfiles(profiles)
	}
	c.log.Infof("Core: 已载入 %d 个配置文件", len(c.profiles))
}

// Close 关闭系统代理并结束内核，退出前调用
func (c *Core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proxyEnabled {
		if err := c.systemProxy.Disable(); err != nil {
			c.log.Warnf("Core: 退出时关闭系统代理失败: %v", err)
		}
		c.proxyEnabled = false
	}
	c.kernel.Close()
	c.running = false
	c.controller = nil
}

func normalizeSettings(settings model.Settings) model.Settings {
	if settings.Config.MixedPort == 0 {
		settings.Config.MixedPort = model.DefaultMixedPort
	}
	if _, ok := model.ParseMode(string(settings.Config.Mode)); !ok {
		settings.Config.Mode = model.ModeRule
	}
	if settings.ProxyGroupSelections == nil {
		settings.ProxyGroupSelections = map[string]string{}
	}
	return settings
}

func (c *Core) saveSettingsLocked() {
	if c.settingsStore == nil {
		return
	}
	if err := c.settingsStore.Save(c.settings); err != nil {
		c.log.Errorf("Core: 保存设置失败: %v", err)
	}
}

func (c *Core) saveProfilesLocked() {
	if c.profileStore == nil {
		return
	}
	if err := c.profileStore.Save(c.profiles); err != nil {
		c.log.Errorf("Core: 保存配置文件列表失败: %v", err)
	}
}
