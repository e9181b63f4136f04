package release

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/config"
	"linkpad.com/p/internal/logging"
	"linkpad.com/p/internal/model"
)

const (
	// DefaultAPIURL 最新版本元数据接口
	DefaultAPIURL = "https://api.github.com/repos/MetaCubeX/mihomo/releases/latest"
	// DefaultLatestPageURL 最新版本网页，接口失败时通过其跳转地址获取版本号
	DefaultLatestPageURL = "https://github.com/MetaCubeX/mihomo/releases/latest"
	// DefaultDownloadBase 按文件名下载时使用的地址前缀
	DefaultDownloadBase = "https://github.com/MetaCubeX/mihomo/releases"

	// UserAgent 发布接口与下载使用的 User-Agent
	UserAgent = "linkpad-core/0.1"

	metadataTimeout = 20 * time.Second
	downloadTimeout = 60 * time.Second
)

// Release 发布接口返回的版本信息
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset 发布文件，Digest 形如 sha256:<hex>，可能为空
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Digest             string `json:"digest"`
}

// Installer 下载并安装最新的 mihomo 内核
type Installer struct {
	APIURL        string
	LatestPageURL string
	DownloadBase  string
	Token         string // 可选的 bearer token
	InstallPath   string // 内核安装位置
	OS            string // 发布文件名中的系统标识
	Arch          string // 发布文件名中的架构标识

	metaClient     *http.Client
	downloadClient *http.Client
	log            *logging.SafeLogger
}

// NewInstaller 创建安装器。
// 参数：
//   - installPath: 内核安装位置
//   - log: 日志（可为 nil）
//
// 返回：安装器实例，token 取自 LINKPAD_GITHUB_TOKEN
func NewInstaller(installPath string, log *logging.SafeLogger) *Installer {
	return &Installer{
		APIURL:         DefaultAPIURL,
		LatestPageURL:  DefaultLatestPageURL,
		DownloadBase:   DefaultDownloadBase,
		Token:          strings.TrimSpace(os.Getenv(config.EnvGithubToken)),
		InstallPath:    installPath,
		OS:             ReleaseOS(),
		Arch:           ReleaseArch(),
		metaClient:     &http.Client{Timeout: metadataTimeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
		log:            log,
	}
}

// InstallLatest 获取最新版本，下载、校验、解压并原子替换内核文件。
// 返回：安装结果和错误（安装失败时原有内核文件保持不变）
func (in *Installer) InstallLatest() (*model.KernelUpgrade, error) {
	rel, err := in.fetchLatestRelease()
	if err != nil {
		return nil, err
	}

	var (
		assetName string
		data      []byte
	)
	if asset := SelectAsset(rel.Assets, in.OS, in.Arch); asset != nil {
		in.log.Infof("内核安装: 下载 %s", asset.Name)
		data, err = in.downloadAsset(asset)
		if err != nil {
			return nil, err
		}
		if err := verifyDigest(asset, data); err != nil {
			return nil, err
		}
		assetName = asset.Name
	} else {
		names := CandidateNames(rel.TagName, in.OS, in.Arch)
		assetName, data, err = in.downloadByCandidates(rel.TagName, names)
		if err != nil {
			return nil, err
		}
	}

	binary, err := decompressGzip(data)
	if err != nil {
		return nil, err
	}

	target, err := installBinary(in.InstallPath, binary)
	if err != nil {
		return nil, err
	}
	in.log.Infof("内核安装: %s 已安装到 %s", rel.TagName, target)

	return &model.KernelUpgrade{
		Version:    rel.TagName,
		BinaryPath: target,
		AssetName:  assetName,
	}, nil
}

// fetchLatestRelease 接口失败时退回网页跳转，只能得到版本号
func (in *Installer) fetchLatestRelease() (*Release, error) {
	rel, apiErr := in.fetchFromAPI()
	if apiErr == nil {
		return rel, nil
	}
	in.log.Warnf("内核安装: 发布接口失败，改用网页: %v", apiErr)

	tag, webErr := in.fetchTagFromWeb()
	if webErr != nil {
		return nil, apperr.Network("%v; 网页回退失败: %v", apiErr, webErr)
	}
	return &Release{TagName: tag}, nil
}

func (in *Installer) fetchFromAPI() (*Release, error) {
	req, err := http.NewRequest(http.MethodGet, in.APIURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNetwork, "创建请求失败", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if in.Token != "" {
		req.Header.Set("Authorization", "Bearer "+in.Token)
	}

	resp, err := in.metaClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNetwork, "获取发布信息失败", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNetwork, "读取发布信息失败", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Network("获取发布信息失败: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var rel Release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, apperr.Wrap(apperr.CodeParse, "解析发布信息失败", err)
	}
	rel.TagName = NormalizeTag(rel.TagName)
	if rel.TagName == "" {
		return nil, apperr.Parse("发布信息中没有版本号")
	}
	return &rel, nil
}

// fetchTagFromWeb 从 /releases/latest 跳转后的 /releases/tag/<tag> 中取版本号
func (in *Installer) fetchTagFromWeb() (string, error) {
	req, err := http.NewRequest(http.MethodGet, in.LatestPageURL, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeNetwork, "创建请求失败", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := in.metaClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeNetwork, "获取发布页面失败", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.Network("获取发布页面失败: %s", resp.Status)
	}

	const marker = "/releases/tag/"
	var tag string
	if _, after, found := strings.Cut(resp.Request.URL.Path, marker); found {
		tag = NormalizeTag(strings.Trim(after, "/"))
	}
	if tag == "" {
		return "", apperr.Parse("无法从发布页面地址解析版本号")
	}
	return tag, nil
}

func (in *Installer) downloadAsset(asset *Asset) ([]byte, error) {
	data, err := in.download(asset.BrowserDownloadURL)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, apperr.Network("下载 %s 失败: 404 Not Found", asset.Name)
	}
	return data, nil
}

// downloadByCandidates 依次尝试每个候选文件名的两种地址，404 只记录不中断
func (in *Installer) downloadByCandidates(tag string, names []string) (string, []byte, error) {
	var attempts []string
	for _, name := range names {
		urls := []string{
			fmt.Sprintf("%s/download/%s/%s", in.DownloadBase, tag, name),
			fmt.Sprintf("%s/latest/download/%s", in.DownloadBase, name),
		}
		for _, u := range urls {
			data, err := in.download(u)
			switch {
			case err != nil:
				attempts = append(attempts, name+"@"+err.Error())
			case data == nil:
				attempts = append(attempts, name+"@404")
			default:
				return name, data, nil
			}
		}
	}
	return "", nil, apperr.Network("未能下载 %s 的内核文件，已尝试: %s", tag, strings.Join(attempts, ", "))
}

// download 返回 nil, nil 表示 404
func (in *Installer) download(u string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNetwork, "创建请求失败", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := in.downloadClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNetwork, "下载失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.Network("下载失败: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNetwork, "读取下载内容失败", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// NormalizeTag 去掉空白并补全 v 前缀
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.HasPrefix(tag, "v") {
		return tag
	}
	return "v" + tag
}
