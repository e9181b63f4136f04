package release

import (
	"runtime"
	"sort"
	"strings"
)

// ReleaseOS 当前系统在发布文件名中的标识
func ReleaseOS() string {
	return runtime.GOOS
}

// ReleaseArch 当前架构在发布文件名中的标识
func ReleaseArch() string {
	switch runtime.GOARCH {
	case "arm":
		return "armv7"
	default:
		return runtime.GOARCH
	}
}

// SelectAsset 选出 mihomo-{os}-{arch}-*.gz 中最朴素的一个：
// 依次避开 alpha、compatible、带 Go 版本标记的文件，再取最短的名字
func SelectAsset(assets []Asset, goos, arch string) *Asset {
	prefix := "mihomo-" + goos + "-" + arch + "-"
	var matches []*Asset
	for i := range assets {
		a := &assets[i]
		if strings.HasPrefix(a.Name, prefix) && strings.HasSuffix(strings.ToLower(a.Name), ".gz") {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return lessScore(scoreAsset(matches[i].Name), scoreAsset(matches[j].Name))
	})
	return matches[0]
}

type assetScore [4]int

func scoreAsset(name string) assetScore {
	lower := strings.ToLower(name)
	return assetScore{
		boolInt(strings.Contains(lower, "alpha")),
		boolInt(strings.Contains(lower, "compatible")),
		boolInt(strings.Contains(lower, "-go")),
		len(name),
	}
}

func lessScore(a, b assetScore) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CandidateNames 没有文件列表时按命名规则猜测的文件名，按字典序排列
func CandidateNames(tag, goos, arch string) []string {
	tag = NormalizeTag(tag)
	base := "mihomo-" + goos + "-" + arch + "-"

	set := make(map[string]struct{})
	add := func(variant string) {
		set[base+variant+tag+".gz"] = struct{}{}
	}

	add("")
	for _, level := range []string{"", "v1-", "v2-"} {
		if level != "" {
			add(level)
		}
		for _, goVersion := range []string{"go124-", "go122-", "go120-"} {
			add(level + goVersion)
		}
	}
	if arch == "amd64" {
		add("compatible-")
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
