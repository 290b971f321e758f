package lexical

// TokenSet 去重后的词集合
type TokenSet map[string]struct{}

func NewTokenSet(tokens []string) TokenSet {
	set := make(TokenSet, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// Add 将 tokens 并入集合
func (s TokenSet) Add(tokens []string) {
	for _, tok := range tokens {
		s[tok] = struct{}{}
	}
}

func (s TokenSet) Contains(tok string) bool {
	_, ok := s[tok]
	return ok
}

// Jaccard 返回 |A∩B| / |A∪B|。两个集合都为空时返回 0，空文本之间永远不相似。
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	inter := 0
	for tok := range a {
		if b.Contains(tok) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Similarity 计算两个词列表（按集合处理）的 Jaccard 相似度
func Similarity(a, b []string) float64 {
	return Jaccard(NewTokenSet(a), NewTokenSet(b))
}
