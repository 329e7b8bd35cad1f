package transport

import (
	"net"
	"strconv"
)

func HostAddr(host string, port uint16) string {
	p := strconv.FormatUint(uint64(port), 10)
	return net.JoinHostPort(host, p)
}

// SplitHostAddr is the inverse of HostAddr.
func SplitHostAddr(addr string) (string, uint16, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(port), nil
}
