package core

import (
	"github.com/nikolaydubina/fpdecimal"
)

type treeColor uint8

const (
	red   treeColor = 0
	black treeColor = 1
)

type treeNode struct {
	price  fpdecimal.Decimal
	queue  *OrderQueue
	color  treeColor
	left   *treeNode
	right  *treeNode
	parent *treeNode
}

// PriceTree is a red-black tree keyed by price, one per book side. Every key
// maps to exactly one non-empty OrderQueue; removing the last order at a
// price must be followed by Remove so no empty level stays reachable.
//
// The sentinel-node representation keeps rotations and the delete fixup free
// of nil checks. Succ and Pred descend from the root by key instead of
// keeping a traversal stack, so deleting levels between calls never
// invalidates a walk.
type PriceTree struct {
	root *treeNode
	nil  *treeNode
	size int
}

// NewPriceTree creates an empty price index
func NewPriceTree() *PriceTree {
	sentinel := &treeNode{color: black}
	return &PriceTree{root: sentinel, nil: sentinel}
}

// Len returns the number of price levels
func (t *PriceTree) Len() int {
	return t.size
}

// Get returns the queue at the given price
func (t *PriceTree) Get(price fpdecimal.Decimal) (*OrderQueue, bool) {
	n := t.searchNode(price)
	if n == t.nil {
		return nil, false
	}
	return n.queue, true
}

// Exists reports whether a level exists at the given price
func (t *PriceTree) Exists(price fpdecimal.Decimal) bool {
	return t.searchNode(price) != t.nil
}

// Insert returns the queue at the given price, creating a new empty level if
// none exists yet. Insertion adds a leaf and restores balance with at most
// O(log n) recolorings and two rotations.
func (t *PriceTree) Insert(price fpdecimal.Decimal) *OrderQueue {
	y := t.nil
	x := t.root
	for x != t.nil {
		y = x
		if price.LessThan(x.price) {
			x = x.left
		} else if price.GreaterThan(x.price) {
			x = x.right
		} else {
			return x.queue
		}
	}
	q := NewOrderQueue(price)
	z := &treeNode{price: price, queue: q, color: red, left: t.nil, right: t.nil, parent: y}
	if y == t.nil {
		t.root = z
	} else if price.LessThan(y.price) {
		y.left = z
	} else {
		y.right = z
	}
	t.insertFixup(z)
	t.size++
	return q
}

// Remove deletes the level at the given price. The level must already be
// empty; a populated level is the caller's bookkeeping to drain first.
func (t *PriceTree) Remove(price fpdecimal.Decimal) error {
	z := t.searchNode(price)
	if z == t.nil {
		return ErrPriceNotFound
	}
	if z.queue.Len() != 0 {
		return ErrLevelNotEmpty
	}
	t.deleteNode(z)
	t.size--
	return nil
}

// Min returns the lowest price and its queue
func (t *PriceTree) Min() (fpdecimal.Decimal, *OrderQueue, bool) {
	n := t.minNode(t.root)
	if n == t.nil {
		return fpdecimal.Zero, nil, false
	}
	return n.price, n.queue, true
}

// Max returns the highest price and its queue
func (t *PriceTree) Max() (fpdecimal.Decimal, *OrderQueue, bool) {
	n := t.maxNode(t.root)
	if n == t.nil {
		return fpdecimal.Zero, nil, false
	}
	return n.price, n.queue, true
}

// Succ returns the smallest price strictly greater than the given one. The
// descent records the best candidate on every left turn; an exact match with
// a right subtree is superseded by that subtree's minimum. The error
// distinguishes an empty tree, an absent key, and the maximum key having no
// successor.
func (t *PriceTree) Succ(price fpdecimal.Decimal) (fpdecimal.Decimal, *OrderQueue, error) {
	if t.root == t.nil {
		return fpdecimal.Zero, nil, ErrEmptyTree
	}
	n := t.root
	cand := t.nil
	for n != t.nil {
		if price.Equal(n.price) {
			break
		}
		if price.LessThan(n.price) {
			if cand == t.nil || n.price.LessThan(cand.price) {
				cand = n
			}
			n = n.left
		} else {
			n = n.right
		}
	}
	if n == t.nil {
		return fpdecimal.Zero, nil, ErrPriceNotFound
	}
	if n.right != t.nil {
		m := t.minNode(n.right)
		if cand == t.nil || m.price.LessThan(cand.price) {
			cand = m
		}
	}
	if cand == t.nil {
		return fpdecimal.Zero, nil, ErrNoSuccessor
	}
	return cand.price, cand.queue, nil
}

// Pred returns the largest price strictly less than the given one. Mirror of
// Succ.
func (t *PriceTree) Pred(price fpdecimal.Decimal) (fpdecimal.Decimal, *OrderQueue, error) {
	if t.root == t.nil {
		return fpdecimal.Zero, nil, ErrEmptyTree
	}
	n := t.root
	cand := t.nil
	for n != t.nil {
		if price.Equal(n.price) {
			break
		}
		if price.GreaterThan(n.price) {
			if cand == t.nil || n.price.GreaterThan(cand.price) {
				cand = n
			}
			n = n.right
		} else {
			n = n.left
		}
	}
	if n == t.nil {
		return fpdecimal.Zero, nil, ErrPriceNotFound
	}
	if n.left != t.nil {
		m := t.maxNode(n.left)
		if cand == t.nil || m.price.GreaterThan(cand.price) {
			cand = m
		}
	}
	if cand == t.nil {
		return fpdecimal.Zero, nil, ErrNoPredecessor
	}
	return cand.price, cand.queue, nil
}

// Cursor walks (price, queue) pairs in ascending or descending price order.
// A fresh cursor starts a fresh traversal; Seek jumps to an existing key.
// Stepping past the last element reports ok=false, which is the end of the
// sequence and not an error.
type Cursor struct {
	tree       *PriceTree
	node       *treeNode
	descending bool
	started    bool
}

// NewCursor creates a cursor over the tree. Pass descending=true to walk
// from the highest price down.
func (t *PriceTree) NewCursor(descending bool) *Cursor {
	return &Cursor{tree: t, descending: descending}
}

// Next returns the next (price, queue) pair, or ok=false past the end
func (c *Cursor) Next() (fpdecimal.Decimal, *OrderQueue, bool) {
	t := c.tree
	if !c.started {
		c.started = true
		if c.descending {
			c.node = t.maxNode(t.root)
		} else {
			c.node = t.minNode(t.root)
		}
	}
	n := c.node
	if n == t.nil {
		return fpdecimal.Zero, nil, false
	}
	if c.descending {
		c.node = t.prevNode(n)
	} else {
		c.node = t.nextNode(n)
	}
	return n.price, n.queue, true
}

// Seek positions the cursor so the following Next returns the given price.
// It descends from the root comparing keys; an absent key leaves the cursor
// untouched and returns false.
func (c *Cursor) Seek(price fpdecimal.Decimal) bool {
	n := c.tree.searchNode(price)
	if n == c.tree.nil {
		return false
	}
	c.node = n
	c.started = true
	return true
}

// Reset restarts the traversal from the extreme
func (c *Cursor) Reset() {
	c.started = false
	c.node = nil
}

// internals

func (t *PriceTree) searchNode(price fpdecimal.Decimal) *treeNode {
	n := t.root
	for n != t.nil {
		switch {
		case price.LessThan(n.price):
			n = n.left
		case price.GreaterThan(n.price):
			n = n.right
		default:
			return n
		}
	}
	return t.nil
}

func (t *PriceTree) minNode(n *treeNode) *treeNode {
	if n == t.nil {
		return t.nil
	}
	for n.left != t.nil {
		n = n.left
	}
	return n
}

func (t *PriceTree) maxNode(n *treeNode) *treeNode {
	if n == t.nil {
		return t.nil
	}
	for n.right != t.nil {
		n = n.right
	}
	return n
}

func (t *PriceTree) nextNode(n *treeNode) *treeNode {
	if n.right != t.nil {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *PriceTree) prevNode(n *treeNode) *treeNode {
	if n.left != t.nil {
		return t.maxNode(n.left)
	}
	p := n.parent
	for p != t.nil && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *PriceTree) leftRotate(x *treeNode) {
	y := x.right
	x.right = y.left
	if y.left != t.nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *PriceTree) rightRotate(x *treeNode) {
	y := x.left
	x.left = y.right
	if y.right != t.nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == t.nil {
		t.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *PriceTree) insertFixup(z *treeNode) {
	for z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					t.leftRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rightRotate(z.parent.parent)
			}
		} else {
			y := z.parent.parent.left
			if y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					t.rightRotate(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.leftRotate(z.parent.parent)
			}
		}
	}
	t.root.color = black
}

func (t *PriceTree) transplant(u, v *treeNode) {
	if u.parent == t.nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *PriceTree) deleteNode(z *treeNode) {
	y := z
	yColor := y.color
	var x *treeNode
	switch {
	case z.left == t.nil:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.nil:
		x = z.left
		t.transplant(z, z.left)
	default:
		// two children: splice in the in-order successor
		y = t.minNode(z.right)
		yColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}
	if yColor == black {
		t.deleteFixup(x)
	}
}

func (t *PriceTree) deleteFixup(x *treeNode) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.leftRotate(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.right.color == black {
					w.left.color = black
					w.color = red
					t.rightRotate(w)
					w = x.parent.right
				}
				w.color = x.parent.color
				x.parent.color = black
				w.right.color = black
				t.leftRotate(x.parent)
				x = t.root
			}
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rightRotate(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
			} else {
				if w.left.color == black {
					w.right.color = black
					w.color = red
					t.leftRotate(w)
					w = x.parent.left
				}
				w.color = x.parent.color
				x.parent.color = black
				w.left.color = black
				t.rightRotate(x.parent)
				x = t.root
			}
		}
	}
	x.color = black
}
