package kernel

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/config"
)

// Resolver 查找可用的 mihomo 可执行文件。
// 查找顺序：显式覆盖路径，固定安装位置，最后是 PATH。
// 每个候选既可以是文件，也可以是需要扫描的目录。
type Resolver struct {
	Override   string // 环境变量或配置文件指定的文件/目录
	BinaryName string // mihomo 或 mihomo.exe
	RuntimeDir string
	InstallDir string
	ExeDir     string // 当前可执行文件所在目录，为空时跳过相关位置
	GOOS       string
	PathEnv    string // PATH 环境变量
}

// NewResolver 创建查找器。
// 参数：
//   - paths: 应用目录布局
//   - configured: 配置文件中的 kernelPath（LINKPAD_MIHOMO_PATH 优先）
//
// 返回：查找器实例
func NewResolver(paths config.Paths, configured string) *Resolver {
	override := strings.TrimSpace(os.Getenv(config.EnvKernelPath))
	if override == "" {
		override = strings.TrimSpace(configured)
	}

	var exeDir string
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}

	return &Resolver{
		Override:   override,
		BinaryName: config.KernelBinaryName(),
		RuntimeDir: paths.RuntimeDir,
		InstallDir: paths.InstallDir,
		ExeDir:     exeDir,
		GOOS:       runtime.GOOS,
		PathEnv:    os.Getenv("PATH"),
	}
}

// SuggestedPath 建议的安装位置
func (r *Resolver) SuggestedPath() string {
	if r.InstallDir != "" {
		return filepath.Join(r.InstallDir, r.BinaryName)
	}
	return filepath.Join(r.RuntimeDir, "bin", r.BinaryName)
}

// Candidates 返回覆盖路径之后、PATH 之前依次检查的位置
func (r *Resolver) Candidates() []string {
	name := r.BinaryName
	candidates := []string{name}

	runtimeBin := filepath.Join(r.RuntimeDir, "bin")
	candidates = append(candidates, filepath.Join(runtimeBin, name), runtimeBin)

	if r.InstallDir != "" {
		candidates = append(candidates, filepath.Join(r.InstallDir, name), r.InstallDir)
	}

	if r.ExeDir != "" {
		exeBin := filepath.Join(r.ExeDir, "bin")
		candidates = append(candidates,
			filepath.Join(r.ExeDir, name),
			filepath.Join(exeBin, name),
			exeBin,
		)

		parent := filepath.Dir(r.ExeDir)
		for _, resources := range []string{"Resources", "resources"} {
			root := filepath.Join(parent, resources)
			for _, dir := range []string{
				filepath.Join(root, config.AppName, "resources", "bin"),
				filepath.Join(root, config.AppName, "bin"),
				filepath.Join(root, "resources", "bin"),
				filepath.Join(root, "bin"),
			} {
				candidates = append(candidates, filepath.Join(dir, name), dir)
			}
		}
	}

	if r.GOOS == "darwin" {
		candidates = append(candidates,
			filepath.Join("/opt/homebrew/bin", name),
			filepath.Join("/usr/local/bin", name),
		)
	}

	return candidates
}

// Resolve 返回第一个可执行的内核文件。
// 失败时错误中列出所有检查过的位置，以及存在但不可执行的文件。
func (r *Resolver) Resolve() (string, error) {
	var checked, nonExecutable []string

	if r.Override != "" {
		if found := r.resolveCandidate(r.Override, &nonExecutable); found != "" {
			return found, nil
		}
		checked = append(checked, r.Override)
	}

	for _, candidate := range r.Candidates() {
		if found := r.resolveCandidate(candidate, &nonExecutable); found != "" {
			return found, nil
		}
		checked = append(checked, candidate)
	}

	if inPath := r.findInPath(); inPath != "" {
		if r.isExecutable(inPath) {
			return inPath, nil
		}
		nonExecutable = append(nonExecutable, inPath)
		checked = append(checked, inPath)
	}

	message := "未找到 mihomo 可执行文件，请设置 " + config.EnvKernelPath +
		" 或放置到 " + r.SuggestedPath() + "。已检查: " + strings.Join(checked, ", ")
	if len(nonExecutable) > 0 {
		message += "。存在但不可执行: " + strings.Join(uniqueStrings(nonExecutable), ", ") + "，请执行 chmod +x <路径>"
	}
	return "", apperr.InvalidConfig("%s", message)
}

// resolveCandidate 文件直接判断可执行性，目录则扫描匹配的文件名
func (r *Resolver) resolveCandidate(path string, nonExecutable *[]string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if info.Mode().IsRegular() {
		if r.isExecutable(path) {
			return path
		}
		*nonExecutable = append(*nonExecutable, path)
		return ""
	}
	if !info.IsDir() {
		return ""
	}
	return r.scanDir(path, nonExecutable)
}

// scanDir 完全同名优先，其次是 mihomo-/mihomo_/mihomo. 前缀，最后是仅包含 mihomo 的文件名，
// 每组内按字典序
func (r *Resolver) scanDir(dir string, nonExecutable *[]string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	stem := strings.ToLower(strings.TrimSuffix(r.BinaryName, ".exe"))
	exact := strings.ToLower(r.BinaryName)
	var exactMatches, prefixed, fallback []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		name := strings.ToLower(entry.Name())
		switch {
		case name == exact:
			exactMatches = append(exactMatches, path)
		case strings.HasPrefix(name, stem+"-"), strings.HasPrefix(name, stem+"_"), strings.HasPrefix(name, stem+"."):
			prefixed = append(prefixed, path)
		case strings.Contains(name, stem):
			fallback = append(fallback, path)
		}
	}
	sort.Strings(prefixed)
	sort.Strings(fallback)

	ordered := append(append(exactMatches, prefixed...), fallback...)
	for _, path := range ordered {
		if r.isExecutable(path) {
			return path
		}
		*nonExecutable = append(*nonExecutable, path)
	}
	return ""
}

func (r *Resolver) findInPath() string {
	for _, dir := range filepath.SplitList(r.PathEnv) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, r.BinaryName)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}
	return ""
}

// isExecutable Windows 上只要求是普通文件，其他平台需要任一执行位
func (r *Resolver) isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if r.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
