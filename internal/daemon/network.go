package daemon

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"hearth/internal/config"
)

// StreamURLBuilder returns the function that maps a media file stem to the
// URL receivers stream it from. The host comes from the configured advertise
// host, or from the first routable interface address when unset; the port
// comes from the media bind address.
func StreamURLBuilder(cfg *config.Config) (func(stem string) string, error) {
	host := strings.TrimSpace(cfg.Paths.AdvertiseHost)
	if host == "" {
		detected, err := detectLANHost()
		if err != nil {
			return nil, fmt.Errorf("detect advertise host: %w", err)
		}
		host = detected
	}
	_, port, err := net.SplitHostPort(cfg.Paths.MediaBind)
	if err != nil {
		return nil, fmt.Errorf("parse media bind address: %w", err)
	}
	base := "http://" + net.JoinHostPort(host, port) + "/media/"
	return func(stem string) string {
		return base + stem + ".mp4"
	}, nil
}

// detectLANHost picks the IPv4 address of the first interface that is up and
// not a loopback. Receivers on the LAN must be able to reach this address.
func detectLANHost() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || !ip.IsGlobalUnicast() {
				continue
			}
			return ip.String(), nil
		}
	}
	return "", errors.New("no routable IPv4 interface address found")
}
