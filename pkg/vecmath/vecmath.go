// Package vecmath 提供画像计算所需的纯数值操作：均值、加权和、余弦相似度，
// 以及存储格式（JSON 数组）的编解码。
package vecmath

import (
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// MinSimilarity 是余弦相似度的下界，无法计算余弦（任一向量范数为 0）时使用。
const MinSimilarity = -1.0

var (
	// ErrEmpty 表示输入向量集合为空
	ErrEmpty = errors.New("vecmath: no vectors")

	// ErrDimension 表示向量维度不一致
	ErrDimension = errors.New("vecmath: dimension mismatch")
)

// Mean 计算逐维算术平均。所有向量必须同维，否则返回 ErrDimension（不截断）。
func Mean(vectors [][]float64) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, ErrEmpty
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, ErrEmpty
	}
	out := make([]float64, dim)
	for idx, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dims, want %d", ErrDimension, idx, len(v), dim)
		}
		for i, x := range v {
			out[i] += x
		}
	}
	n := float64(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

// AddScaled 将 w*v 累加到 acc 上（acc 为 nil 时按 v 的维度分配）。
func AddScaled(acc []float64, v []float64, w float64) ([]float64, error) {
	if acc == nil {
		acc = make([]float64, len(v))
	}
	if len(acc) != len(v) {
		return acc, fmt.Errorf("%w: %d vs %d", ErrDimension, len(acc), len(v))
	}
	for i, x := range v {
		acc[i] += w * x
	}
	return acc, nil
}

// Cosine 计算余弦相似度。
// ok 为 false 表示无法计算：维度不一致、向量为空或任一范数为 0。
func Cosine(a, b []float64) (sim float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	sim = dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// 浮点误差可能略超出 [-1, 1]
	return math.Max(-1, math.Min(1, sim)), true
}

// Encode 将向量序列化为存储格式（JSON 数组）。
func Encode(v []float64) ([]byte, error) {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("vecmath: cannot encode non-finite value %v", x)
		}
	}
	return json.Marshal(v)
}

// Decode 解析存储格式；空数组或非数值内容视为错误。
func Decode(data []byte) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("vecmath: decode: %w", err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("vecmath: decode: %w", ErrEmpty)
	}
	return v, nil
}
