package subscription

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/logging"
	"linkpad.com/p/internal/model"
)

const (
	// FetchTimeout 单次订阅请求超时
	FetchTimeout = 20 * time.Second

	acceptHeader = "application/yaml,text/yaml,text/plain,*/*"
)

// DefaultUserAgents 依次尝试的 User-Agent，部分订阅服务按客户端返回不同内容
var DefaultUserAgents = []string{"linkpad/0.1.0", "clash-verge/2.4.0"}

// parseStage 一个解析阶段，失败时交给下一阶段
type parseStage func(sourceURL, content string) (*model.ProfileContent, error)

// SubscriptionManager 订阅拉取与解析。
// 不依赖其他组件，也不持有状态，可并发使用。
type SubscriptionManager struct {
	client     *http.Client
	userAgents []string
	stages     []parseStage
	log        *logging.SafeLogger
}

// NewSubscriptionManager 创建订阅管理器。
// 参数：
//   - log: 日志（可为 nil）
//
// 返回：初始化后的 SubscriptionManager 实例
func NewSubscriptionManager(log *logging.SafeLogger) *SubscriptionManager {
	return &SubscriptionManager{
		client: &http.Client{
			Timeout: FetchTimeout,
		},
		userAgents: DefaultUserAgents,
		stages:     []parseStage{parseClashYAML, parseURIList},
		log:        log,
	}
}

// SetHTTPClient 替换 HTTP 客户端（测试或自定义代理时使用）
func (sm *SubscriptionManager) SetHTTPClient(client *http.Client) {
	sm.client = client
}

// Fetch 拉取订阅内容。
// 按顺序尝试每个 User-Agent，返回第一个看起来是路由配置 YAML 的响应；
// 都不像时返回最后一次成功的响应，全部失败时返回最后一个网络错误。
// 参数：
//   - sourceURL: 订阅地址
//
// 返回：响应正文和错误（如果有）
func (sm *SubscriptionManager) Fetch(sourceURL string) (string, error) {
	var (
		lastBody string
		haveBody bool
		lastErr  error
	)

	for _, ua := range sm.userAgents {
		body, err := sm.fetchOnce(sourceURL, ua)
		if err != nil {
			sm.log.Debugf("订阅管理器: 使用 UA %s 拉取失败: %v", ua, err)
			lastErr = err
			continue
		}
		if LooksLikeClashYAML(body) {
			return body, nil
		}
		lastBody, haveBody = body, true
	}

	if haveBody {
		return lastBody, nil
	}
	if lastErr == nil {
		lastErr = apperr.Network("拉取订阅失败")
	}
	return "", lastErr
}

func (sm *SubscriptionManager) fetchOnce(sourceURL, userAgent string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeNetwork, "创建订阅请求失败", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := sm.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeNetwork, "获取订阅失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.Network("http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeNetwork, "读取订阅内容失败", err)
	}
	return string(body), nil
}

// Parse 解析订阅内容。
// 先按 Clash 配置文档解析，失败后按（可能 base64 编码的）代理 URI 列表解析。
// 参数：
//   - sourceURL: 订阅地址，用于推导配置名称
//   - content: 订阅内容
//
// 返回：解析结果和错误（两个阶段都失败时返回最后一个阶段的错误）
func (sm *SubscriptionManager) Parse(sourceURL, content string) (*model.ProfileContent, error) {
	var lastErr error
	for _, stage := range sm.stages {
		parsed, err := stage(sourceURL, content)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// FetchAndParse 拉取并解析订阅，同时返回原始内容
func (sm *SubscriptionManager) FetchAndParse(sourceURL string) (*model.ProfileContent, string, error) {
	content, err := sm.Fetch(sourceURL)
	if err != nil {
		return nil, "", err
	}
	parsed, err := sm.Parse(sourceURL, content)
	if err != nil {
		return nil, "", err
	}
	sm.log.Infof("订阅管理器: %s 解析完成，节点 %d，代理组 %d，规则 %d",
		sourceURL, parsed.NodeCount, parsed.GroupCount, parsed.RuleCount)
	return parsed, content, nil
}

// LooksLikeClashYAML 判断内容是否包含可识别的 Clash 顶层键
func LooksLikeClashYAML(content string) bool {
	trimmed := strings.TrimLeft(strings.TrimPrefix(content, "\ufeff"), " \t\r\n")
	return strings.Contains(trimmed, "proxies:") ||
		strings.Contains(trimmed, "proxy-groups:") ||
		strings.HasPrefix(trimmed, "mixed-port:") ||
		strings.HasPrefix(trimmed, "port:") ||
		strings.HasPrefix(trimmed, "mode:")
}

// hostOf 返回订阅地址的主机名，解析失败时返回空字符串
func hostOf(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func normalizeKind(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "proxy"
	}
	return strings.ToLower(kind)
}

// kindSupportsUDP 这些协议默认支持 UDP
func kindSupportsUDP(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "tuic", "hysteria", "hysteria2", "hy2", "wireguard":
		return true
	default:
		return false
	}
}
