package node

// Binary is one named binary payload carried by a workflow item.
type Binary struct {
	Data     []byte `json:"-"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Item is one unit of workflow data: a JSON object plus zero or more named
// binary payloads.
type Item struct {
	JSON   map[string]any
	Binary map[string]Binary
}

// SetBinary merges a new binary entry into a copy of the item's binary map;
// existing entries are carried forward untouched.
func (it *Item) SetBinary(name string, bin Binary) {
	merged := make(map[string]Binary, len(it.Binary)+1)
	for k, v := range it.Binary {
		merged[k] = v
	}
	merged[name] = bin
	it.Binary = merged
}

// Result is one output record tagged with the index of the item it
// originated from.
type Result struct {
	JSON   map[string]any
	Binary map[string]Binary
	Index  int
}

// Response is the dispatcher output. Exactly one field is populated:
// Results for accumulating operations, Items for the two operations that
// enrich the input sequence in place and re-emit it verbatim.
type Response struct {
	Results []Result
	Items   []Item
}
