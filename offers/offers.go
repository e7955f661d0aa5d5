// Package offers implements the RELP open-handshake feature-negotiation
// structure (spec.md §3/§4.4): named, comma-valued capability offers
// exchanged inside the open command's data area.
//
// Wire syntax, one offer per line, no trailing LF after the last offer:
//
//	name=value1,value2\nname=value\nname\n...
package offers

import (
	"strconv"
	"strings"

	"github.com/rsyslog/rsyslog-sub006/errcode"
)

// Offer is a single named capability with zero or more values. IntVal holds
// the integer form of Values[0] when it parses as a non-negative base-10
// integer, or -1 otherwise (spec.md §4.4).
type Offer struct {
	Name   string
	Values []string
	IntVal int
}

func parseIntVal(s string) int {
	if s == "" {
		return -1
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// List is an ordered offer list, as exchanged in an open frame or a 200 OK
// response. Lookup is by name; List preserves the order offers were added
// or parsed in, since serialization order is part of the wire contract for
// logging/diffing even though the grammar doesn't otherwise require it.
type List struct {
	order  []string
	byName map[string]*Offer
}

// NewList returns an empty offer list.
func NewList() *List {
	return &List{byName: map[string]*Offer{}}
}

// Set adds or replaces (by name) an offer. original_source/src/offers.c's
// offerNew/offerFind searches for an existing offer of the same name and
// replaces it in place rather than appending a duplicate; Set replicates
// that instead of allowing two offers with the same name to coexist.
func (l *List) Set(name string, values ...string) {
	o := &Offer{Name: name, Values: values}
	if len(values) > 0 {
		o.IntVal = parseIntVal(values[0])
	} else {
		o.IntVal = -1
	}
	if _, exists := l.byName[name]; !exists {
		l.order = append(l.order, name)
	}
	l.byName[name] = o
}

// Get looks up an offer by name.
func (l *List) Get(name string) (*Offer, bool) {
	o, ok := l.byName[name]
	return o, ok
}

// Names returns the offer names in the order they were set/parsed.
func (l *List) Names() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Serialize renders the list in wire form, with no trailing '\n' after the
// last offer (the open/rsp frame's own trailer supplies that).
func (l *List) Serialize() []byte {
	var b strings.Builder
	for i, name := range l.order {
		if i > 0 {
			b.WriteByte('\n')
		}
		o := l.byName[name]
		b.WriteString(o.Name)
		if len(o.Values) > 0 {
			b.WriteByte('=')
			b.WriteString(strings.Join(o.Values, ","))
		}
	}
	return []byte(b.String())
}

// Parse decodes an offer list from the wire form found in an open/rsp data
// area. A bare line with no '=' is an offer with zero values.
func Parse(data []byte) (*List, error) {
	l := NewList()
	s := string(data)
	if s == "" {
		return l, nil
	}
	for _, line := range strings.Split(s, "\n") {
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		var name, rest string
		if eq < 0 {
			name = line
		} else {
			name = line[:eq]
			rest = line[eq+1:]
		}
		if len(name) == 0 || len(name) > 32 {
			return nil, errcode.New(errcode.InvalidOffer, "offer name length out of range")
		}
		var values []string
		if eq >= 0 {
			values = strings.Split(rest, ",")
		}
		for _, v := range values {
			if len(v) > 255 {
				return nil, errcode.New(errcode.InvalidOffer, "offer value too long")
			}
		}
		l.Set(name, values...)
	}
	return l, nil
}
