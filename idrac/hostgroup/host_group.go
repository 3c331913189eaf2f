package hostgroup

import (
	"sort"
	"sync"

	"github.com/steelcutops/idracuser/idrac/host"
)

type HostGroup struct {
	sync.RWMutex
	Hosts map[string]*host.Host
}

// NewHostGroup creates a new HostGroup with the given hosts.
func NewHostGroup(hosts ...*host.Host) *HostGroup {
	hostMap := make(map[string]*host.Host)
	for _, h := range hosts {
		hostMap[h.Hostname] = h
	}
	return &HostGroup{Hosts: hostMap}
}

// AddHost adds a host to the HostGroup. A host with the same hostname is
// replaced.
func (hg *HostGroup) AddHost(h *host.Host) {
	hg.Lock()
	defer hg.Unlock()
	hg.Hosts[h.Hostname] = h
}

// List returns the hosts ordered by hostname.
func (hg *HostGroup) List() []*host.Host {
	hg.RLock()
	defer hg.RUnlock()
	hosts := make([]*host.Host, 0, len(hg.Hosts))
	for _, h := range hg.Hosts {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Hostname < hosts[j].Hostname })
	return hosts
}

func (hg *HostGroup) Len() int {
	hg.RLock()
	defer hg.RUnlock()
	return len(hg.Hosts)
}
