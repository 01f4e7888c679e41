package httpapi

import (
	"fmt"
	"net"
)

func parseIPv4(s string) ([4]byte, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return [4]byte{}, fmt.Errorf("invalid ipv4 address %q", s)
	}
	var out [4]byte
	copy(out[:], ip)
	return out, nil
}

func net4String(ip [4]byte) string {
	return net.IP(ip[:]).String()
}
