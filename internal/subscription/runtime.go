package subscription

import (
	"bytes"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"linkpad.com/p/internal/apperr"
	"linkpad.com/p/internal/model"
)

// DefaultExternalController 配置中没有 external-controller 时使用的地址
const DefaultExternalController = "127.0.0.1:9097"

// RuntimeConfig 生成的内核配置
type RuntimeConfig struct {
	Text       string // 写入 runtime.yaml 的内容
	Controller string // external-controller 地址
	Secret     string // external-controller 密钥（可为空）
}

// BuildRuntimeConfig 基于配置文件原文生成内核运行配置。
// 覆盖 mixed-port、allow-lan、mode，仅在缺失时补充 external-controller，其余内容和键顺序保持不变。
// 参数：
//   - profileText: 配置文件原文
//   - cfg: 内核运行配置
//
// 返回：运行配置和错误（YAML 语法错误为 Parse，根节点不是映射为 InvalidConfig）
func BuildRuntimeConfig(profileText string, cfg model.Config) (*RuntimeConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(profileText), &doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeParse, "解析配置文件失败", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, apperr.InvalidConfig("mihomo 配置的根节点必须是 YAML 映射")
	}
	root := doc.Content[0]

	mode := cfg.Mode
	if _, ok := model.ParseMode(string(mode)); !ok {
		mode = model.ModeRule
	}

	setScalar(root, "mixed-port", "!!int", strconv.Itoa(int(cfg.MixedPort)))
	setScalar(root, "allow-lan", "!!bool", strconv.FormatBool(cfg.AllowLan))
	setScalar(root, "mode", "!!str", string(mode))

	controller := lookupScalar(root, "external-controller")
	if _, exists := lookup(root, "external-controller"); !exists {
		setScalar(root, "external-controller", "!!str", DefaultExternalController)
		controller = DefaultExternalController
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, "生成内核配置失败", err)
	}
	if err := enc.Close(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, "生成内核配置失败", err)
	}

	return &RuntimeConfig{
		Text:       buf.String(),
		Controller: strings.TrimSpace(controller),
		Secret:     lookupScalar(root, "secret"),
	}, nil
}

// lookup 在映射节点中查找键，返回值节点
func lookup(mapping *yaml.Node, key string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1], true
		}
	}
	return nil, false
}

func lookupScalar(mapping *yaml.Node, key string) string {
	v, ok := lookup(mapping, key)
	if !ok || v.Kind != yaml.ScalarNode {
		return ""
	}
	return v.Value
}

// setScalar 替换已有键的值，不存在时追加到末尾
func setScalar(mapping *yaml.Node, key, tag, value string) {
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = node
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		node,
	)
}
