package gcasp

// link.go holds the Link value used to name, block, and restore
// undirected edges of the topology

import (
	"fmt"
)

// names of the numeric attributes carried by a Link
const (
	AttrDelay        = "delay"
	AttrCap          = "cap"
	AttrRemainingCap = "remaining_cap"
)

// LinkKey identifies an undirected edge by its endpoint pair,
// with the endpoints stored in lexical order
type LinkKey struct {
	Lo string
	Hi string
}

// MakeLinkKey returns the order-independent key for the edge between a and b
func MakeLinkKey(a, b string) LinkKey {
	if b < a {
		a, b = b, a
	}
	return LinkKey{Lo: a, Hi: b}
}

func (lk LinkKey) String() string {
	return fmt.Sprintf("%s-%s", lk.Lo, lk.Hi)
}

// A Link names an undirected edge through its two endpoints, and carries
// a bag of named numeric attributes (delay, capacity, remaining capacity).
// Two Links are equal when their endpoints are, whatever their attributes.
type Link struct {
	A     string
	B     string
	Attrs map[string]float64
}

// CreateLink is a constructor.  The attribute map is copied so that
// the Link does not alias the caller's storage
func CreateLink(a, b string, attrs map[string]float64) Link {
	lnk := Link{A: a, B: b, Attrs: make(map[string]float64, len(attrs))}
	for name, value := range attrs {
		lnk.Attrs[name] = value
	}
	return lnk
}

// Key returns the endpoint pair of the link, ignoring orientation
func (lnk Link) Key() LinkKey {
	return MakeLinkKey(lnk.A, lnk.B)
}

// Equal compares endpoints only
func (lnk Link) Equal(other Link) bool {
	return lnk.Key() == other.Key()
}

// Other returns the endpoint opposite to end
func (lnk Link) Other(end string) string {
	if lnk.A == end {
		return lnk.B
	}
	return lnk.A
}

func (lnk Link) Delay() float64 {
	return lnk.Attrs[AttrDelay]
}

func (lnk Link) Capacity() float64 {
	return lnk.Attrs[AttrCap]
}

func (lnk Link) RemainingCapacity() float64 {
	return lnk.Attrs[AttrRemainingCap]
}

func (lnk Link) String() string {
	return lnk.Key().String()
}

// linkSet is a set of Links deduplicated by endpoint pair.  Insertion
// order is kept so that exclusion and restoration of the set is repeatable
type linkSet struct {
	order []Link
	index map[LinkKey]int
}

func createLinkSet() linkSet {
	return linkSet{order: []Link{}, index: make(map[LinkKey]int)}
}

// add puts lnk in the set, reporting false if a link with the
// same endpoints is already present
func (ls *linkSet) add(lnk Link) bool {
	if ls.index == nil {
		ls.index = make(map[LinkKey]int)
	}
	key := lnk.Key()
	if _, present := ls.index[key]; present {
		return false
	}
	ls.index[key] = len(ls.order)
	ls.order = append(ls.order, lnk)
	return true
}

func (ls *linkSet) contains(lnk Link) bool {
	_, present := ls.index[lnk.Key()]
	return present
}

func (ls *linkSet) len() int {
	return len(ls.order)
}

// links returns a copy of the members, in insertion order
func (ls *linkSet) links() []Link {
	rtn := make([]Link, len(ls.order))
	copy(rtn, ls.order)
	return rtn
}

func (ls *linkSet) clear() {
	ls.order = ls.order[:0]
	ls.index = make(map[LinkKey]int)
}
