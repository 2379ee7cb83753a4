package rpz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/miekg/dns"
)

// Name trigger slots within a node.
const (
	slotQName = iota
	slotNSDName
	numNameSlots
)

func nameSlot(t Type) int {
	switch t {
	case TypeQName:
		return slotQName
	case TypeNSDName:
		return slotNSDName
	}
	panic(fmt.Sprintf("rpz: %v is not a name trigger type", t))
}

// nameData holds zone bits for exact-name triggers (set) and for wildcard
// triggers registered against this name's children (wild).
type nameData struct {
	set  [numNameSlots]ZoneBits
	wild [numNameSlots]ZoneBits
}

func (d nameData) empty() bool {
	return d.set[slotQName]|d.set[slotNSDName]|d.wild[slotQName]|d.wild[slotNSDName] == 0
}

func (d nameData) mask(z ZoneBits) nameData {
	for i := range numNameSlots {
		d.set[i] &= z
		d.wild[i] &= z
	}
	return d
}

func (d *nameData) bits(slot int, wild bool) *ZoneBits {
	if wild {
		return &d.wild[slot]
	}
	return &d.set[slot]
}

// nameNode is a node of the name trie. Labels are stored in reverse order,
// so "www.example.com." is reached through "com", "example", "www".
type nameNode struct {
	label    string
	parent   *nameNode
	children map[string]*nameNode
	data     nameData
}

func newNameNode(label string, parent *nameNode) *nameNode {
	return &nameNode{label: label, parent: parent}
}

// name rebuilds the absolute name of the node.
func (n *nameNode) name() string {
	var labels []string
	for ; n != nil && n.parent != nil; n = n.parent {
		labels = append(labels, n.label)
	}
	if len(labels) == 0 {
		return "."
	}
	return strings.Join(labels, ".") + "."
}

// nameTree is a trie over domain names. The caller provides synchronization.
type nameTree struct {
	root  *nameNode
	nodes int // nodes below the root
	names int // nodes holding any trigger
	limit int
}

func newNameTree(limit int) *nameTree {
	return &nameTree{root: newNameNode("", nil), limit: limit}
}

// reversedLabels splits a canonical name into labels, TLD first.
func reversedLabels(name string) []string {
	labels := dns.SplitDomainName(name)
	slices.Reverse(labels)
	return labels
}

// locate returns the node for labels, creating missing nodes when create is set.
func (t *nameTree) locate(labels []string, create bool) (*nameNode, error) {
	n := t.root
	for i, l := range labels {
		c := n.children[l]
		if c == nil {
			if !create {
				return nil, nil
			}
			missing := len(labels) - i
			if t.limit > 0 && t.nodes+missing > t.limit {
				return nil, fmt.Errorf("%w: name trie limit of %d nodes", ErrOutOfMemory, t.limit)
			}
			for _, l := range labels[i:] {
				c = newNameNode(l, n)
				if n.children == nil {
					n.children = make(map[string]*nameNode, 4)
				}
				n.children[l] = c
				n = c
			}
			t.nodes += missing
			return n, nil
		}
		n = c
	}
	return n, nil
}

// insert sets zone bits on name. It returns ErrAlreadyPresent when they
// were all set already.
func (t *nameTree) insert(name string, slot int, wild bool, z ZoneBits) error {
	return t.merge(name, func(d *nameData) bool {
		b := d.bits(slot, wild)
		if z&^*b == 0 {
			return false
		}
		*b |= z
		return true
	})
}

// merge applies fn to the data of name, creating the node if needed, and
// keeps the counters straight. fn reports whether it changed anything.
func (t *nameTree) merge(name string, fn func(*nameData) bool) error {
	n, err := t.locate(reversedLabels(name), true)
	if err != nil {
		return err
	}
	wasEmpty := n.data.empty()
	if !fn(&n.data) {
		t.prune(n)
		return ErrAlreadyPresent
	}
	if wasEmpty && !n.data.empty() {
		t.names++
	}
	return nil
}

// remove clears zone bits from name and returns those actually cleared.
func (t *nameTree) remove(name string, slot int, wild bool, z ZoneBits) (ZoneBits, error) {
	n, _ := t.locate(reversedLabels(name), false)
	if n == nil {
		return 0, ErrNotFound
	}
	b := n.data.bits(slot, wild)
	cleared := *b & z
	if cleared == 0 {
		return 0, ErrNotFound
	}
	*b &^= cleared
	if n.data.empty() {
		t.names--
	}
	t.prune(n)
	return cleared, nil
}

// prune frees empty leaves from n upward.
func (t *nameTree) prune(n *nameNode) {
	for n != t.root && n.data.empty() && len(n.children) == 0 {
		parent := n.parent
		delete(parent.children, n.label)
		n.parent = nil
		t.nodes--
		n = parent
	}
}

// lookup returns the zones among zbits with an exact trigger for name or a
// wildcard trigger on one of its strict ancestors.
func (t *nameTree) lookup(name string, slot int, zbits ZoneBits) ZoneBits {
	var found ZoneBits
	n := t.root
	for _, l := range reversedLabels(name) {
		found |= n.data.wild[slot]
		c := n.children[l]
		if c == nil {
			return found & zbits
		}
		n = c
	}
	found |= n.data.set[slot]
	return found & zbits
}

// walk visits every node that holds triggers until fn returns false.
func (t *nameTree) walk(fn func(*nameNode) bool) {
	stack := []*nameNode{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !n.data.empty() && !fn(n) {
			return
		}
		for _, c := range n.children {
			stack = append(stack, c)
		}
	}
}

// size returns the number of names holding triggers.
func (t *nameTree) size() int {
	return t.names
}
