package core

import "strconv"

// Label 是推荐链路中的可解释信息：记录候选来自哪里、为何得分。
// Value 与 Source 的语义由节点自定义；这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / filter / rank / rerank
}

// FloatLabel 以紧凑格式记录一个数值（例如相似度、加权分）。
func FloatLabel(v float64, source string) Label {
	return Label{Value: strconv.FormatFloat(v, 'g', 6, 64), Source: source}
}

// MergeLabel 合并同名 Label：Value 以 '|' 累积，Source 以 ',' 累积，空值不参与合并。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := Label{Value: existing.Value + "|" + incoming.Value, Source: existing.Source}
	if incoming.Source != "" && incoming.Source != existing.Source {
		if merged.Source == "" {
			merged.Source = incoming.Source
		} else {
			merged.Source += "," + incoming.Source
		}
	}
	return merged
}
