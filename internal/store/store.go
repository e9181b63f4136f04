package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"linkpad.com/p/internal/database"
	"linkpad.com/p/internal/model"
)

// app_config 中使用的键
const (
	keyMode                 = "mode"
	keyMixedPort            = "mixed_port"
	keyAllowLan             = "allow_lan"
	keySystemProxyEnabled   = "system_proxy_enabled"
	keyAutoLaunchEnabled    = "auto_launch_enabled"
	keySilentStartEnabled   = "silent_start_enabled"
	keyProxyGroupSelections = "proxy_group_selections"
)

// Store 汇总应用使用的持久化协作者。
// 调用前需要先执行 database.InitDB。
type Store struct {
	Settings *SettingsStore
	Profiles *ProfileStore
}

// NewStore 创建 Store 实例
func NewStore() *Store {
	return &Store{
		Settings: NewSettingsStore(),
		Profiles: NewProfileStore(),
	}
}

// SettingsStore 把 model.Settings 映射到 app_config 键值表。
type SettingsStore struct{}

// NewSettingsStore 创建设置存储
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{}
}

// Load 读取设置，缺失或无法解析的项使用默认值
func (s *SettingsStore) Load() (model.Settings, error) {
	settings := model.DefaultSettings()
	if database.DB == nil {
		return settings, fmt.Errorf("设置存储: 数据库未初始化")
	}

	values, err := database.GetAllAppConfig()
	if err != nil {
		return settings, fmt.Errorf("设置存储: %w", err)
	}

	if mode, ok := model.ParseMode(values[keyMode]); ok {
		settings.Config.Mode = mode
	}
	if raw, ok := values[keyMixedPort]; ok {
		if port, err := strconv.ParseUint(raw, 10, 16); err == nil && port != 0 {
			settings.Config.MixedPort = uint16(port)
		}
	}
	settings.Config.AllowLan = parseBool(values[keyAllowLan])
	settings.SystemProxyEnabled = parseBool(values[keySystemProxyEnabled])
	settings.AutoLaunchEnabled = parseBool(values[keyAutoLaunchEnabled])
	settings.SilentStartEnabled = parseBool(values[keySilentStartEnabled])

	if raw := values[keyProxyGroupSelections]; raw != "" {
		selections := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &selections); err == nil {
			settings.ProxyGroupSelections = selections
		}
	}
	return settings, nil
}

// Save 写入全部设置
func (s *SettingsStore) Save(settings model.Settings) error {
	if database.DB == nil {
		return fmt.Errorf("设置存储: 数据库未初始化")
	}

	selections := settings.ProxyGroupSelections
	if selections == nil {
		selections = map[string]string{}
	}
	rawSelections, err := json.Marshal(selections)
	if err != nil {
		return fmt.Errorf("设置存储: 序列化代理组选择失败: %w", err)
	}

	port := settings.Config.MixedPort
	if port == 0 {
		port = model.DefaultMixedPort
	}

	values := map[string]string{
		keyMode:                 string(settings.Config.Mode),
		keyMixedPort:            strconv.Itoa(int(port)),
		keyAllowLan:             strconv.FormatBool(settings.Config.AllowLan),
		keySystemProxyEnabled:   strconv.FormatBool(settings.SystemProxyEnabled),
		keyAutoLaunchEnabled:    strconv.FormatBool(settings.AutoLaunchEnabled),
		keySilentStartEnabled:   strconv.FormatBool(settings.SilentStartEnabled),
		keyProxyGroupSelections: string(rawSelections),
	}
	if err := database.SetAppConfigs(values); err != nil {
		return fmt.Errorf("设置存储: %w", err)
	}
	return nil
}

// ProfileStore 把配置文件列表保存到 profiles 表。
type ProfileStore struct{}

// NewProfileStore 创建配置文件存储
func NewProfileStore() *ProfileStore {
	return &ProfileStore{}
}

// Load 按保存顺序读取配置文件列表
func (ps *ProfileStore) Load() ([]model.Profile, error) {
	if database.DB == nil {
		return nil, fmt.Errorf("配置文件存储: 数据库未初始化")
	}
	profiles, err := database.GetAllProfiles()
	if err != nil {
		return nil, fmt.Errorf("配置文件存储: %w", err)
	}
	return profiles, nil
}

// Save 整体替换配置文件列表
func (ps *ProfileStore) Save(profiles []model.Profile) error {
	if database.DB == nil {
		return fmt.Errorf("配置文件存储: 数据库未初始化")
	}
	if err := database.ReplaceProfiles(profiles); err != nil {
		return fmt.Errorf("配置文件存储: %w", err)
	}
	return nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
