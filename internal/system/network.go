package system

import (
	"errors"
	"net"
)

// LANAddress returns the first IPv4 address of an interface that is up
// and not a loopback, the address other devices on the network reach.
func LANAddress() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String(), nil
			}
		}
	}
	return "", errors.New("no LAN address found")
}

// PublicURL is the preview URL for a listen address. A wildcard host is
// replaced by the LAN address, or localhost when there is none.
func PublicURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host, port = "", "80"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
		if ip, err := LANAddress(); err == nil {
			host = ip
		}
	}
	if port == "80" {
		return "http://" + hostOnly(host) + "/"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func hostOnly(host string) string {
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		return "[" + host + "]"
	}
	return host
}
