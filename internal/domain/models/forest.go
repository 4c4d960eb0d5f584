package models

// ChatNode is a chat with the branches copied from it.
type ChatNode struct {
	Chat     Chat
	Children []*ChatNode
}

// FlatChat is one row of the flattened chat list.
type FlatChat struct {
	Chat  Chat `json:"chat"`
	Depth int  `json:"depth"`
}

// BuildForest links chats into trees by SourceChatID. Chats whose source is
// missing from the input become roots. Input order is kept among siblings.
func BuildForest(chats []Chat) []*ChatNode {
	nodes := make(map[string]*ChatNode, len(chats))
	order := make([]*ChatNode, 0, len(chats))
	for _, c := range chats {
		if _, dup := nodes[c.ID]; dup {
			continue
		}
		n := &ChatNode{Chat: c}
		nodes[c.ID] = n
		order = append(order, n)
	}

	var roots []*ChatNode
	for _, n := range order {
		var parent *ChatNode
		ok := false
		if n.Chat.IsBranch() {
			parent, ok = nodes[*n.Chat.SourceChatID]
		}
		if !ok || parent == n || createsCycle(nodes, n, parent) {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots
}

// createsCycle reports whether attaching n under parent would loop back to n.
func createsCycle(nodes map[string]*ChatNode, n, parent *ChatNode) bool {
	seen := map[string]bool{n.Chat.ID: true}
	for cur := parent; cur != nil; {
		if seen[cur.Chat.ID] {
			return true
		}
		seen[cur.Chat.ID] = true
		if !cur.Chat.IsBranch() {
			return false
		}
		cur = nodes[*cur.Chat.SourceChatID]
	}
	return false
}

// Flatten walks the forest depth-first and returns a display list.
func Flatten(roots []*ChatNode) []FlatChat {
	var out []FlatChat
	var walk func(n *ChatNode, depth int)
	walk = func(n *ChatNode, depth int) {
		out = append(out, FlatChat{Chat: n.Chat, Depth: depth})
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return out
}
