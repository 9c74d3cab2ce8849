package mlmodel

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

const eulerGamma = 0.5772156649

// лист дерева
const leaf = -1

// IsolationTree одно дерево изоляционного леса в виде параллельных массивов узлов
type IsolationTree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	NodeSamples   []int     `json:"n_node_samples"`
	// Features отображает индекс признака дерева в индекс точки, если дерево
	// обучалось на перестановке признаков
	Features []int `json:"features,omitempty"`
}

// IsolationForest изоляционный лес
type IsolationForest struct {
	MaxSamples int             `json:"max_samples"`
	Offset     float64         `json:"offset"`
	Trees      []IsolationTree `json:"trees"`
}

// Score средняя нормированная глубина изоляции со знаком минус, в (-1, 0)
func (f *IsolationForest) Score(p Point) float64 {
	var depth float64
	for i := range f.Trees {
		depth += f.Trees[i].pathLength(p)
	}
	depth /= float64(len(f.Trees))
	return -math.Pow(2, -depth/averagePathLength(f.MaxSamples))
}

// Predict -1 если Score ниже порога Offset, иначе 1
func (f *IsolationForest) Predict(p Point) int {
	if f.Score(p)-f.Offset < 0 {
		return -1
	}
	return 1
}

func (t *IsolationTree) pathLength(p Point) float64 {
	node, depth := 0, 0
	for t.ChildrenLeft[node] != leaf {
		if p[t.featureIndex(node)] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
		depth++
	}
	return float64(depth) + averagePathLength(t.NodeSamples[node])
}

func (t *IsolationTree) featureIndex(node int) int {
	f := t.Feature[node]
	if len(t.Features) > 0 {
		return t.Features[f]
	}
	return f
}

func (t *IsolationTree) validate() error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.NodeSamples) != n {
		return fmt.Errorf("node arrays have different lengths")
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf {
			continue
		}
		// узлы в порядке обхода в глубину, потомки всегда после родителя
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d: child index out of range", i)
		}
		f := t.Feature[i]
		if len(t.Features) > 0 {
			if f < 0 || f >= len(t.Features) {
				return fmt.Errorf("node %d: feature %d outside mapping", i, f)
			}
			f = t.Features[f]
		}
		if f < 0 || f >= len(Point{}) {
			return fmt.Errorf("node %d: feature %d out of range", i, f)
		}
	}
	return nil
}

// averagePathLength средняя длина неуспешного поиска в BST из n элементов
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// DecodeIsolationForest читает и проверяет артефакт изоляционного леса
func DecodeIsolationForest(r io.Reader) (*IsolationForest, error) {
	var f IsolationForest
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode isolation forest: %w", err)
	}
	if f.MaxSamples <= 0 {
		return nil, fmt.Errorf("isolation forest: max_samples must be positive")
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("isolation forest: no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(); err != nil {
			return nil, fmt.Errorf("isolation forest: tree %d: %w", i, err)
		}
	}
	return &f, nil
}
