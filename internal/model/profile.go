package model

// ProxyNode 代理节点摘要。
type ProxyNode struct {
	Name string `json:"name"` // 节点名称，同时是代理组成员的关联键
	Kind string `json:"kind"` // 协议类型（小写）
	UDP  bool   `json:"udp"`  // 是否支持 UDP
}

// ProxyGroup 代理组，成员为有序的节点名称列表。
type ProxyGroup struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"` // 例如 select
	Size    int      `json:"size"` // 构造时等于 len(Proxies)
	Proxies []string `json:"proxies"`
}

// NewProxyGroup 创建代理组并同步 Size。
func NewProxyGroup(name, kind string, proxies []string) ProxyGroup {
	return ProxyGroup{
		Name:    name,
		Kind:    kind,
		Size:    len(proxies),
		Proxies: proxies,
	}
}

// ProfileContent 订阅解析结果。
type ProfileContent struct {
	Name        string       `json:"name"`
	NodeCount   int          `json:"node_count"`
	GroupCount  int          `json:"group_count"`
	RuleCount   int          `json:"rule_count"`
	ProxyGroups []ProxyGroup `json:"proxy_groups"`
	ProxyNodes  []ProxyNode  `json:"proxy_nodes"`
	Rules       []string     `json:"rules"`
}

// Profile 表示一个已导入的订阅配置。
type Profile struct {
	ID        string `json:"id"`
	SourceURL string `json:"source_url"`
	UpdatedAt string `json:"updated_at"` // 本地时间 2006-01-02 15:04:05
	Active    bool   `json:"active"`
	ProfileContent
	RawConfig string `json:"-"` // 拉取到的原始内容，用于生成内核配置
}

// FindGroup 按名称查找代理组
func (p *Profile) FindGroup(name string) (ProxyGroup, bool) {
	for _, g := range p.ProxyGroups {
		if g.Name == name {
			return g, true
		}
	}
	return ProxyGroup{}, false
}

// Contains 判断代理组是否包含指定节点
func (g ProxyGroup) Contains(proxy string) bool {
	for _, name := range g.Proxies {
		if name == proxy {
			return true
		}
	}
	return false
}
