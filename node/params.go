package node

// Resolver supplies operation parameters already resolved per item index.
// Resolution itself (expressions, defaults, credentials) happens outside the
// dispatcher.
type Resolver interface {
	String(name string, item int) string
	Bool(name string, item int) bool
	Int(name string, item int) int
	Strings(name string, item int) []string
	Object(name string, item int) map[string]any
}

// Params is a map-backed Resolver: Global values apply to every item, PerItem
// entries override by position.
type Params struct {
	Global  map[string]any
	PerItem []map[string]any
}

func (p *Params) value(name string, item int) (any, bool) {
	if item >= 0 && item < len(p.PerItem) {
		if v, ok := p.PerItem[item][name]; ok {
			return v, true
		}
	}
	v, ok := p.Global[name]
	return v, ok
}

func (p *Params) String(name string, item int) string {
	if v, ok := p.value(name, item); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (p *Params) Bool(name string, item int) bool {
	if v, ok := p.value(name, item); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func (p *Params) Int(name string, item int) int {
	v, ok := p.value(name, item)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func (p *Params) Strings(name string, item int) []string {
	v, ok := p.value(name, item)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	}
	return nil
}

func (p *Params) Object(name string, item int) map[string]any {
	if v, ok := p.value(name, item); ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
