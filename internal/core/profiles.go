package core

import (
	"strings"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
	"linkpad.com/p/internal/utils"
)

// ImportProfileURL 拉取并解析订阅，加入配置文件列表。
// 同一地址重复导入时保留原 ID 和激活状态并原位替换，新地址插入到最前面。
// 参数：
//   - sourceURL: 订阅地址
//   - setActive: 是否设为激活配置文件（没有激活的配置文件时总会激活）
//
// 返回：导入后的配置文件和错误（如果有）
func (c *Core) ImportProfileURL(sourceURL string, setActive bool) (*model.Profile, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, apperr.InvalidProfile("订阅地址为空")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	parsed, raw, err := c.ingestor.FetchAndParse(sourceURL)
	if err != nil {
		return nil, err
	}

	profile := model.Profile{
		ID:             utils.GenerateProfileID(sourceURL),
		SourceURL:      sourceURL,
		UpdatedAt:      utils.Now(),
		Active:         setActive,
		ProfileContent: *parsed,
		RawConfig:      raw,
	}

	if index := c.indexBySourceLocked(sourceURL); index >= 0 {
		profile.ID = c.profiles[index].ID
		profile.Active = setActive || c.profiles[index].Active
		c.profiles[index] = profile
	} else {
		c.profiles = append([]model.Profile{profile}, c.profiles...)
	}

	if setActive || c.activeIndexLocked() < 0 {
		c.activateLocked(profile.ID)
	}
	c.saveProfilesLocked()
	c.log.Infof("Core: 已导入配置文件 %s (%s)", profile.Name, profile.ID)

	index := c.indexByIDLocked(profile.ID)
	result := c.profiles[index]
	return &result, nil
}

// RefreshProfile 重新拉取配置文件，保留 ID、订阅地址和激活状态
func (c *Core) RefreshProfile(id string) (*model.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.indexByIDLocked(id)
	if index < 0 {
		return nil, apperr.ErrProfileNotFound
	}
	existing := c.profiles[index]

	parsed, raw, err := c.ingestor.FetchAndParse(existing.SourceURL)
	if err != nil {
		return nil, err
	}

	c.profiles[index] = model.Profile{
		ID:             existing.ID,
		SourceURL:      existing.SourceURL,
		UpdatedAt:      utils.Now(),
		Active:         existing.Active,
		ProfileContent: *parsed,
		RawConfig:      raw,
	}
	c.saveProfilesLocked()
	c.log.Infof("Core: 已更新配置文件 %s (%s)", parsed.Name, id)

	result := c.profiles[index]
	return &result, nil
}

// DeleteProfile 删除配置文件，删除的是激活配置文件时第一个剩余的配置文件成为激活
func (c *Core) DeleteProfile(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.indexByIDLocked(id)
	if index < 0 {
		return apperr.ErrProfileNotFound
	}

	removedActive := c.profiles[index].Active
	c.profiles = append(c.profiles[:index], c.profiles[index+1:]...)
	if removedActive && len(c.profiles) > 0 {
		c.profiles[0].Active = true
	}
	c.saveProfilesLocked()
	return nil
}

// Profiles 全部配置文件（副本）
func (c *Core) Profiles() []model.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Profile(nil), c.profiles...)
}

// ActiveProfile 当前激活的配置文件，没有时返回 nil
func (c *Core) ActiveProfile() *model.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.activeIndexLocked()
	if index < 0 {
		return nil
	}
	profile := c.profiles[index]
	return &profile
}

// ActiveProxyGroups 激活配置文件的代理组
func (c *Core) ActiveProxyGroups() []model.ProxyGroup {
	if p := c.ActiveProfile(); p != nil {
		return p.ProxyGroups
	}
	return nil
}

// ActiveProxyNodes 激活配置文件的节点
func (c *Core) ActiveProxyNodes() []model.ProxyNode {
	if p := c.ActiveProfile(); p != nil {
		return p.ProxyNodes
	}
	return nil
}

// ActiveRules 激活配置文件的规则
func (c *Core) ActiveRules() []string {
	if p := c.ActiveProfile(); p != nil {
		return p.Rules
	}
	return nil
}

// SetActiveProfile 激活指定配置文件，其余全部取消激活
func (c *Core) SetActiveProfile(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexByIDLocked(id) < 0 {
		return apperr.ErrProfileNotFound
	}
	c.activateLocked(id)
	c.saveProfilesLocked()
	return nil
}

// ReplaceProfiles 整体替换配置文件列表。
// 没有激活项时第一个成为激活，多个激活项时只保留第一个。
func (c *Core) ReplaceProfiles(profiles []model.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.profiles = normalizeProfiles(profiles)
	c.saveProfilesLocked()
}

func normalizeProfiles(profiles []model.Profile) []model.Profile {
	out := append([]model.Profile(nil), profiles...)
	if len(out) == 0 {
		return nil
	}
	foundActive := false
	for i := range out {
		if out[i].Active {
			if foundActive {
				out[i].Active = false
			} else {
				foundActive = true
			}
		}
	}
	if !foundActive {
		out[0].Active = true
	}
	return out
}

func (c *Core) activateLocked(id string) {
	for i := range c.profiles {
		c.profiles[i].Active = c.profiles[i].ID == id
	}
}

func (c *Core) activeIndexLocked() int {
	for i, p := range c.profiles {
		if p.Active {
			return i
		}
	}
	return -1
}

func (c *Core) indexByIDLocked(id string) int {
	for i, p := range c.profiles {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (c *Core) indexBySourceLocked(sourceURL string) int {
	for i, p := range c.profiles {
		if p.SourceURL == sourceURL {
			return i
		}
	}
	return -1
}
