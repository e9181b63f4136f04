package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"linkpad.com/p/internal/apperr"
)

// requestTimeout 单次请求超时，内核在本机运行
const requestTimeout = 5 * time.Second

// Client mihomo external-controller REST 客户端。
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// ProxyInfo /proxies 返回的单个代理或代理组
type ProxyInfo struct {
	Name string   `json:"name"`
	Type string   `json:"type"`
	Now  string   `json:"now,omitempty"` // 代理组当前选中的节点
	All  []string `json:"all,omitempty"`
}

// NewClient 创建控制器客户端。
// 参数：
//   - address: external-controller 地址，例如 127.0.0.1:9097，可以带 http:// 前缀
//   - secret: 控制器密钥，为空时不发送认证头
//
// 返回：客户端实例
func NewClient(address, secret string) *Client {
	base := strings.TrimRight(strings.TrimSpace(address), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + localHost(base)
	}
	return &Client{
		baseURL: base,
		secret:  secret,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Version 内核版本
func (c *Client) Version() (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(http.MethodGet, "/version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// SelectProxy 在代理组中选中节点
func (c *Client) SelectProxy(group, proxy string) error {
	body := map[string]string{"name": proxy}
	return c.do(http.MethodPut, "/proxies/"+url.PathEscape(group), body, nil)
}

// Proxies 所有代理与代理组，按名称索引
func (c *Client) Proxies() (map[string]ProxyInfo, error) {
	var out struct {
		Proxies map[string]ProxyInfo `json:"proxies"`
	}
	if err := c.do(http.MethodGet, "/proxies", nil, &out); err != nil {
		return nil, err
	}
	return out.Proxies, nil
}

// Delay 让内核通过指定节点访问测试地址，返回延迟（毫秒）
func (c *Client) Delay(proxy, testURL string, timeout time.Duration) (int, error) {
	query := url.Values{}
	query.Set("url", testURL)
	query.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))

	var out struct {
		Delay int `json:"delay"`
	}
	path := "/proxies/" + url.PathEscape(proxy) + "/delay?" + query.Encode()
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return -1, err
	}
	return out.Delay, nil
}

// localHost 监听在所有地址（":9090"、"0.0.0.0:9090"）时改为本机回环地址
func localHost(address string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	switch host {
	case "", "0.0.0.0", "::":
		return net.JoinHostPort("127.0.0.1", port)
	}
	return address
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.CodeParse, "编码请求失败", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return apperr.Wrap(apperr.CodeNetwork, "创建请求失败", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeNetwork, fmt.Sprintf("请求控制器 %s 失败", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.Network("控制器返回 http status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.CodeParse, "解析控制器响应失败", err)
	}
	return nil
}
