package subscription

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
)

// rawProfileDoc Clash 配置中需要提取的部分
type rawProfileDoc struct {
	Proxies     []rawProxy      `yaml:"proxies"`
	ProxyGroups []rawProxyGroup `yaml:"proxy-groups"`
	Rules       []yaml.Node     `yaml:"rules"`
}

type rawProxy struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	UDP  bool   `yaml:"udp"`
}

type rawProxyGroup struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Proxies []string `yaml:"proxies"`
}

// parseClashYAML 第一阶段：按 Clash/mihomo 配置文档解析
func parseClashYAML(sourceURL, content string) (*model.ProfileContent, error) {
	var doc rawProfileDoc
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeParse, "解析 YAML 失败", err)
	}
	if len(doc.Proxies) == 0 {
		return nil, apperr.InvalidProfile("缺少 proxies 段或 proxies 为空")
	}

	nodes := make([]model.ProxyNode, 0, len(doc.Proxies))
	allNames := make([]string, 0, len(doc.Proxies))
	for i, p := range doc.Proxies {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = "Proxy " + strconv.Itoa(i+1)
		}
		nodes = append(nodes, model.ProxyNode{
			Name: name,
			Kind: normalizeKind(p.Type),
			UDP:  p.UDP || kindSupportsUDP(p.Type),
		})
		allNames = append(allNames, name)
	}

	var groups []model.ProxyGroup
	for _, g := range doc.ProxyGroups {
		if strings.TrimSpace(g.Name) == "" {
			continue
		}
		kind := g.Type
		if strings.TrimSpace(kind) == "" {
			kind = "select"
		}
		proxies := g.Proxies
		if proxies == nil {
			proxies = []string{}
		}
		groups = append(groups, model.NewProxyGroup(g.Name, kind, proxies))
	}
	if len(groups) == 0 {
		groups = append(groups, model.NewProxyGroup("default", "select", allNames))
	}

	rules := collectRules(doc.Rules)

	return &model.ProfileContent{
		Name:        clashProfileName(sourceURL, &doc),
		NodeCount:   len(nodes),
		GroupCount:  len(groups),
		RuleCount:   len(rules),
		ProxyGroups: groups,
		ProxyNodes:  nodes,
		Rules:       rules,
	}, nil
}

// collectRules 标量规则原样保留，复杂结构渲染为单行文本
func collectRules(values []yaml.Node) []string {
	rules := make([]string, 0, len(values))
	for i := range values {
		v := &values[i]
		var rule string
		if v.Kind == yaml.ScalarNode {
			rule = strings.TrimSpace(v.Value)
		} else {
			out, err := yaml.Marshal(v)
			if err != nil {
				continue
			}
			rule = strings.ReplaceAll(strings.TrimSpace(string(out)), "\n", " ")
		}
		if rule != "" {
			rules = append(rules, rule)
		}
	}
	return rules
}

// clashProfileName 第一个代理组名 > 第一个节点名 > 订阅主机名 > 默认名
func clashProfileName(sourceURL string, doc *rawProfileDoc) string {
	if len(doc.ProxyGroups) > 0 {
		if name := strings.TrimSpace(doc.ProxyGroups[0].Name); name != "" {
			return name
		}
	}
	if len(doc.Proxies) > 0 {
		if name := strings.TrimSpace(doc.Proxies[0].Name); name != "" {
			return name
		}
	}
	if host := hostOf(sourceURL); host != "" {
		return host
	}
	return "imported-profile"
}
