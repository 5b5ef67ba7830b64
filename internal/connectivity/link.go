package connectivity

import (
	"context"
	"net"
	"time"
)

// LinkMonitor delivers the coarse "device has a network link" signal.
// Implementations send the current state once on start and then only
// transitions.
type LinkMonitor interface {
	Events(ctx context.Context) <-chan bool
}

// InterfacePoller derives the coarse signal from the host's network
// interfaces: the link is up when at least one non-loopback interface is up
// and has an address assigned.
type InterfacePoller struct {
	interval time.Duration
}

func NewInterfacePoller(interval time.Duration) *InterfacePoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &InterfacePoller{interval: interval}
}

func (p *InterfacePoller) Events(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)

	go func() {
		defer close(ch)

		last := linkUp()
		ch <- last

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := linkUp()
				if now == last {
					continue
				}
				last = now
				select {
				case ch <- now:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch
}

func linkUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}

var _ LinkMonitor = (*InterfacePoller)(nil)
