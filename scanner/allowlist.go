package scanner

import (
	"fmt"
	"strings"

	"github.com/cornelk/hashmap"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
)

// Wildcard admits every address.
const Wildcard = "*"

// AllowList decides which advertisers are relayed. Entries are kept in
// normalized form; lookups normalize the queried address the same way.
type AllowList struct {
	any   bool
	addrs *hashmap.Map[string, struct{}]
}

// ParseAllowList builds an allow-list from a ";" or "," separated string.
// An empty string is the wildcard.
func ParseAllowList(s string) (*AllowList, error) {
	entries := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	return NewAllowList(entries)
}

// NewAllowList builds an allow-list from individual entries. Addresses may be
// bare or colon separated, in any case. No entries means the wildcard.
func NewAllowList(entries []string) (*AllowList, error) {
	al := &AllowList{addrs: hashmap.New[string, struct{}]()}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
			continue
		case entry == Wildcard:
			al.any = true
			continue
		}

		addr := bleuio.NormalizeAddress(entry)
		if addr == "" {
			return nil, fmt.Errorf("invalid allow-list address %q", entry)
		}
		al.addrs.Set(addr, struct{}{})
	}

	if al.addrs.Len() == 0 {
		al.any = true
	}
	return al, nil
}

// Allows reports whether advertisements from addr are relayed.
func (al *AllowList) Allows(addr string) bool {
	if al == nil || al.any {
		return true
	}
	_, ok := al.addrs.Get(bleuio.NormalizeAddress(addr))
	return ok
}

// IsWildcard reports whether every address is admitted.
func (al *AllowList) IsWildcard() bool {
	return al == nil || al.any
}

// Addresses returns the explicit entries in normalized form.
func (al *AllowList) Addresses() []string {
	if al == nil {
		return nil
	}
	out := make([]string, 0, al.addrs.Len())
	al.addrs.Range(func(addr string, _ struct{}) bool {
		out = append(out, addr)
		return true
	})
	return out
}

func (al *AllowList) String() string {
	if al.IsWildcard() {
		return Wildcard
	}
	return strings.Join(al.Addresses(), ";")
}
