package subscription

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
)

// minBase64Length 短于此长度的内容不按 base64 尝试
const minBase64Length = 24

// supportedSchemes 第二阶段识别的代理 URI 协议
var supportedSchemes = map[string]bool{
	"ss":        true,
	"ssr":       true,
	"trojan":    true,
	"vmess":     true,
	"vless":     true,
	"tuic":      true,
	"hysteria":  true,
	"hysteria2": true,
	"hy2":       true,
	"anytls":    true,
	"http":      true,
	"https":     true,
	"socks5":    true,
	"wireguard": true,
}

// base64Encodings 依次尝试：标准、标准无填充、URL 安全、URL 安全无填充
var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// parseURIList 第二阶段：按明文或 base64 编码的代理 URI 列表解析
func parseURIList(sourceURL, content string) (*model.ProfileContent, error) {
	candidates := []string{content}
	if decoded, ok := decodeSubscriptionPayload(content); ok && strings.TrimSpace(decoded) != strings.TrimSpace(content) {
		candidates = append(candidates, decoded)
	}

	for _, candidate := range candidates {
		if parsed := parseURIText(sourceURL, candidate); parsed != nil {
			return parsed, nil
		}
	}
	return nil, apperr.InvalidProfile("不支持的配置格式")
}

func parseURIText(sourceURL, text string) *model.ProfileContent {
	nodes := extractURINodes(text)
	if len(nodes) == 0 {
		return nil
	}

	byKind := make(map[string][]string)
	allNames := make([]string, 0, len(nodes))
	for _, n := range nodes {
		byKind[n.Kind] = append(byKind[n.Kind], n.Name)
		allNames = append(allNames, n.Name)
	}
	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	groups := make([]model.ProxyGroup, 0, len(kinds)+1)
	groups = append(groups, model.NewProxyGroup("All Proxies", "select", allNames))
	for _, kind := range kinds {
		groups = append(groups, model.NewProxyGroup(strings.ToUpper(kind)+" Nodes", kind, byKind[kind]))
	}

	return &model.ProfileContent{
		Name:        uriProfileName(sourceURL, nodes),
		NodeCount:   len(nodes),
		GroupCount:  len(groups),
		RuleCount:   0,
		ProxyGroups: groups,
		ProxyNodes:  nodes,
		Rules:       []string{},
	}
}

// extractURINodes 每个非空、非注释且协议受支持的行生成一个节点
func extractURINodes(text string) []model.ProxyNode {
	var nodes []model.ProxyNode
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		scheme, _, found := strings.Cut(line, "://")
		if !found {
			continue
		}
		scheme = strings.ToLower(scheme)
		if !supportedSchemes[scheme] {
			continue
		}

		name := uriNodeName(line)
		if name == "" {
			name = fmt.Sprintf("%s-%d", strings.ToUpper(scheme), len(nodes)+1)
		}
		nodes = append(nodes, model.ProxyNode{
			Name: name,
			Kind: normalizeKind(scheme),
			UDP:  kindSupportsUDP(scheme),
		})
	}
	return nodes
}

// uriNodeName 取 URI 片段（百分号解码后）作为节点名
func uriNodeName(line string) string {
	if u, err := url.Parse(line); err == nil && u.Fragment != "" {
		if name := strings.TrimSpace(u.Fragment); name != "" {
			return name
		}
	}
	if _, fragment, found := strings.Cut(line, "#"); found {
		if decoded, err := url.PathUnescape(fragment); err == nil {
			fragment = decoded
		}
		return strings.TrimSpace(fragment)
	}
	return ""
}

// decodeSubscriptionPayload 内容看起来是 base64 时逐个尝试编码，
// 返回第一个解码为合法 UTF-8 且包含 "://" 的结果
func decodeSubscriptionPayload(content string) (string, bool) {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		b.WriteString(strings.TrimSpace(line))
	}
	compact := strings.TrimSpace(b.String())
	if compact == "" || !looksLikeBase64(compact) {
		return "", false
	}

	for _, enc := range base64Encodings {
		data, err := enc.DecodeString(compact)
		if err != nil || !utf8.Valid(data) {
			continue
		}
		decoded := string(data)
		if strings.Contains(decoded, "://") {
			return decoded, true
		}
	}
	return "", false
}

func looksLikeBase64(text string) bool {
	if len(text) < minBase64Length || strings.Contains(text, "://") {
		return false
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '=', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// uriProfileName 订阅主机名 > 第一个节点名 > 默认名
func uriProfileName(sourceURL string, nodes []model.ProxyNode) string {
	if host := hostOf(sourceURL); host != "" {
		return host
	}
	if len(nodes) > 0 {
		if name := strings.TrimSpace(nodes[0].Name); name != "" {
			return name
		}
	}
	return "imported-subscription"
}
