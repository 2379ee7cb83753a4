package rpz

import "fmt"

// Address trigger slots within a node.
const (
	slotClientIP = iota
	slotIP
	slotNSIP
	numAddrSlots
)

func addrSlot(t Type) int {
	switch t {
	case TypeClientIP:
		return slotClientIP
	case TypeIP:
		return slotIP
	case TypeNSIP:
		return slotNSIP
	}
	panic(fmt.Sprintf("rpz: %v is not an address trigger type", t))
}

// addrBits holds zone bits for each address trigger type.
type addrBits [numAddrSlots]ZoneBits

func addrBitsFor(t Type, z ZoneBits) addrBits {
	var b addrBits
	b[addrSlot(t)] = z
	return b
}

func (a addrBits) or(b addrBits) addrBits {
	for i := range a {
		a[i] |= b[i]
	}
	return a
}

func (a addrBits) and(b addrBits) addrBits {
	for i := range a {
		a[i] &= b[i]
	}
	return a
}

func (a addrBits) andNot(b addrBits) addrBits {
	for i := range a {
		a[i] &^= b[i]
	}
	return a
}

func (a addrBits) mask(z ZoneBits) addrBits {
	for i := range a {
		a[i] &= z
	}
	return a
}

func (a addrBits) empty() bool {
	return a[slotClientIP]|a[slotIP]|a[slotNSIP] == 0
}

// cidrNode is a node of the address radix trie. set holds the zones with a
// trigger for exactly this block; sum is set OR-ed with both children's sums.
type cidrNode struct {
	key    Key
	prefix uint8
	parent *cidrNode
	child  [2]*cidrNode
	set    addrBits
	sum    addrBits
}

func newCIDRNode(key Key, prefix uint8, child *cidrNode) *cidrNode {
	n := &cidrNode{key: key.masked(prefix), prefix: prefix}
	if child != nil {
		n.sum = child.sum
	}
	return n
}

// fixSums recomputes sum here and in every ancestor whose sum changes.
func (n *cidrNode) fixSums() {
	for ; n != nil; n = n.parent {
		sum := n.set
		for _, c := range n.child {
			if c != nil {
				sum = sum.or(c.sum)
			}
		}
		if sum == n.sum {
			return
		}
		n.sum = sum
	}
}

// cidrTree is a PATRICIA trie over 128-bit keys.
// The caller provides synchronization.
type cidrTree struct {
	root  *cidrNode
	nodes int
	limit int
}

func newCIDRTree(limit int) *cidrTree {
	return &cidrTree{limit: limit}
}

func (t *cidrTree) grow(n int) error {
	if t.limit > 0 && t.nodes+n > t.limit {
		return fmt.Errorf("%w: address trie limit of %d nodes", ErrOutOfMemory, t.limit)
	}
	t.nodes += n
	return nil
}

// link puts n where the parent's child slot (or the root) was.
func (t *cidrTree) link(parent *cidrNode, num int, n *cidrNode) {
	if parent == nil {
		t.root = n
	} else {
		parent.child[num] = n
	}
	if n != nil {
		n.parent = parent
	}
}

// insert adds bits to the node for key/prefix, creating nodes as needed.
// It returns ErrAlreadyPresent when every bit was already set there.
func (t *cidrTree) insert(key Key, prefix uint8, bits addrBits) (*cidrNode, error) {
	if bits.empty() {
		return nil, ErrAlreadyPresent
	}

	var parent *cidrNode
	num := 0
	cur := t.root
	for {
		if cur == nil {
			if err := t.grow(1); err != nil {
				return nil, err
			}
			leaf := newCIDRNode(key, prefix, nil)
			t.link(parent, num, leaf)
			leaf.set = bits
			leaf.fixSums()
			return leaf, nil
		}

		dbit := diffBits(key, prefix, cur.key, cur.prefix)
		if dbit == prefix {
			if prefix == cur.prefix {
				if bits.andNot(cur.set).empty() {
					return cur, ErrAlreadyPresent
				}
				cur.set = cur.set.or(bits)
				cur.fixSums()
				return cur, nil
			}

			// The target block contains cur: it becomes cur's parent.
			if err := t.grow(1); err != nil {
				return nil, err
			}
			up := newCIDRNode(key, prefix, cur)
			t.link(parent, num, up)
			t.link(up, cur.key.bit(prefix), cur)
			up.set = bits
			up.fixSums()
			return up, nil
		}

		if dbit == cur.prefix {
			parent = cur
			num = key.bit(dbit)
			cur = cur.child[num]
			continue
		}

		// The blocks diverge at dbit: fork them under a new internal node.
		if err := t.grow(2); err != nil {
			return nil, err
		}
		leaf := newCIDRNode(key, prefix, nil)
		fork := newCIDRNode(key, dbit, cur)
		t.link(parent, num, fork)
		side := key.bit(dbit)
		t.link(fork, side, leaf)
		t.link(fork, 1-side, cur)
		leaf.set = bits
		leaf.fixSums()
		return leaf, nil
	}
}

// lookup finds the deepest node on the path to key/prefix that holds any of
// zbits for the slot. Zones matched by a shallower node are dropped from the
// search, so a deeper node only wins through zones not yet seen.
func (t *cidrTree) lookup(key Key, prefix uint8, slot int, zbits ZoneBits) *cidrNode {
	var found *cidrNode
	for cur := t.root; cur != nil; {
		if cur.sum[slot]&zbits == 0 {
			break
		}
		dbit := diffBits(key, prefix, cur.key, cur.prefix)
		if dbit < cur.prefix {
			break
		}
		if hit := cur.set[slot] & zbits; hit != 0 {
			found = cur
			zbits &^= hit
		}
		if dbit == prefix {
			break
		}
		cur = cur.child[key.bit(dbit)]
	}
	return found
}

// find returns the node for exactly key/prefix.
func (t *cidrTree) find(key Key, prefix uint8) *cidrNode {
	for cur := t.root; cur != nil; {
		dbit := diffBits(key, prefix, cur.key, cur.prefix)
		if dbit < cur.prefix {
			return nil
		}
		if dbit == prefix {
			return cur
		}
		cur = cur.child[key.bit(dbit)]
	}
	return nil
}

// remove clears bits from the node for key/prefix and prunes nodes left
// without triggers and with fewer than two children. It returns the bits
// that were actually cleared.
func (t *cidrTree) remove(key Key, prefix uint8, bits addrBits) (addrBits, error) {
	n := t.find(key, prefix)
	if n == nil {
		return addrBits{}, ErrNotFound
	}
	cleared := bits.and(n.set)
	if cleared.empty() {
		return cleared, ErrNotFound
	}
	n.set = n.set.andNot(cleared)
	n.fixSums()
	t.prune(n)
	return cleared, nil
}

func (t *cidrTree) prune(n *cidrNode) {
	for n != nil {
		if !n.set.empty() {
			return
		}
		var only *cidrNode
		switch {
		case n.child[0] != nil && n.child[1] != nil:
			return
		case n.child[0] != nil:
			only = n.child[0]
		default:
			only = n.child[1]
		}

		parent := n.parent
		num := 0
		if parent != nil && parent.child[1] == n {
			num = 1
		}
		t.link(parent, num, only)
		n.parent, n.child = nil, [2]*cidrNode{}
		t.nodes--
		n = parent
	}
}

// walk visits every node in pre-order until fn returns false.
func (t *cidrTree) walk(fn func(*cidrNode) bool) {
	if t.root == nil {
		return
	}
	stack := []*cidrNode{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			return
		}
		for i := len(n.child) - 1; i >= 0; i-- {
			if c := n.child[i]; c != nil {
				stack = append(stack, c)
			}
		}
	}
}

// size returns the number of nodes.
func (t *cidrTree) size() int {
	return t.nodes
}
