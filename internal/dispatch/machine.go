package dispatch

import (
	"context"
	"net"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/dropwatch/dropwatch/internal/domain"
	"github.com/dropwatch/dropwatch/internal/errors"
)

// MachineProbe reports the identity of the observing host.
type MachineProbe interface {
	Probe(ctx context.Context) (domain.MachineMetadata, error)
}

// HostProbe asks the OS for host information and resolves the hostname to
// an address on every call.
type HostProbe struct {
	resolver *net.Resolver
}

// NewHostProbe creates a probe using the default resolver.
func NewHostProbe() *HostProbe {
	return &HostProbe{resolver: net.DefaultResolver}
}

// Probe implements MachineProbe. An IPv4 address is preferred.
func (p *HostProbe) Probe(ctx context.Context) (domain.MachineMetadata, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return domain.MachineMetadata{}, errors.Wrap(err, errors.CodeIO, "read host info")
	}

	addrs, err := p.resolver.LookupIPAddr(ctx, info.Hostname)
	if err != nil {
		return domain.MachineMetadata{}, errors.Wrapf(err, errors.CodeIO, "resolve hostname %s", info.Hostname)
	}
	ip := pickAddr(addrs)
	if ip == "" {
		return domain.MachineMetadata{}, errors.IOf("hostname %s has no address", info.Hostname)
	}

	return domain.MachineMetadata{
		Hostname:      info.Hostname,
		IP:            ip,
		OS:            info.OS,
		Platform:      info.Platform,
		KernelVersion: info.KernelVersion,
	}, nil
}

// pickAddr returns the first IPv4 address, or the first address at all.
func pickAddr(addrs []net.IPAddr) string {
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP.String()
	}
	return ""
}

// StaticProbe always returns the same metadata.
type StaticProbe domain.MachineMetadata

// Probe implements MachineProbe.
func (p StaticProbe) Probe(context.Context) (domain.MachineMetadata, error) {
	return domain.MachineMetadata(p), nil
}
