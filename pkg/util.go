package protocol

import (
	"net/netip"

	"github.com/pkg/errors"
)

// ParseVirtualAddr parses an IPv4 address for the virtual link.
func ParseVirtualAddr(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, errors.Wrap(err, "virtual address")
	}
	if !addr.Is4() {
		return netip.Addr{}, errors.Errorf("virtual address %s is not IPv4", addr)
	}
	return addr, nil
}

func formatAddr(addr netip.Addr) string {
	// Check if addr is equal to the zero value of netip.Addr
	if !addr.IsValid() {
		return "*"
	}
	return addr.String()
}
