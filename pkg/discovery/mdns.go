package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/meshwire-protocol/meshwire-go/pkg/wire"
)

// AdvertiserConfig tunes mDNS advertising.
type AdvertiserConfig struct {
	// Interface restricts advertising to one named interface. Empty
	// means all interfaces.
	Interface string

	// TTL overrides the record time to live. Zero keeps the zeroconf
	// default.
	TTL time.Duration
}

// Advertiser announces the local node over mDNS. Nothing is announced
// until Register.
type Advertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
	id     wire.PeerID
}

// NewAdvertiser creates an advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	return &Advertiser{config: config}
}

// getInterfaces returns the network interfaces to advertise on.
// Returns nil to use all interfaces.
func (a *Advertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Register announces the node. A previous announcement from this
// advertiser is withdrawn first.
func (a *Advertiser) Register(id wire.PeerID, name string, port uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		InstanceName(id, name),
		ServiceType,
		Domain,
		int(port),
		TXTRecordsToStrings(EncodeNodeTXT(id, name)),
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register mdns service: %w", err)
	}

	a.server = server
	a.id = id
	return nil
}

// Update rewrites the TXT records of a live announcement, keeping the
// registered id.
func (a *Advertiser) Update(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotRegistered
	}
	a.server.SetText(TXTRecordsToStrings(EncodeNodeTXT(a.id, name)))
	return nil
}

// Stop withdraws the announcement.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// BrowserConfig tunes mDNS browsing.
type BrowserConfig struct {
	// Interface restricts browsing to one named interface. Empty
	// means all interfaces.
	Interface string
}

// Browser searches for meshwire nodes over mDNS.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// Browse streams nodes as they appear until ctx is done. Addresses
// seen on multiple interfaces are aggregated into the entry already
// emitted for that instance name.
func (b *Browser) Browse(ctx context.Context) (<-chan *Node, error) {
	out := make(chan *Node)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	opts := b.browserOptions()

	go func() {
		defer close(out)

		nodes := make(map[string]*Node)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				node := entryToNode(entry)
				if node == nil {
					continue
				}

				existing, found := nodes[node.Instance]
				if found {
					existing.Addrs = mergeAddresses(existing.Addrs, node.Addrs)
					continue
				}
				nodes[node.Instance] = node
				select {
				case out <- node:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := nodes[entry.Instance]; found {
					existing.Addrs = removeAddresses(existing.Addrs, entry)
					if len(existing.Addrs) == 0 {
						delete(nodes, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// FindNodes browses for at most timeout and returns every node seen.
func (b *Browser) FindNodes(ctx context.Context, timeout time.Duration) ([]*Node, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var nodes []*Node
	for node := range results {
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// FindByID browses until a node advertising id appears.
func (b *Browser) FindByID(ctx context.Context, id wire.PeerID) (*Node, error) {
	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case node, ok := <-results:
			if !ok {
				return nil, ErrNotFound
			}
			if node.ID == id {
				return node, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// entryToNode converts a zeroconf entry, dropping foreign or
// malformed announcements.
func entryToNode(entry *zeroconf.ServiceEntry) *Node {
	id, name, err := DecodeNodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Node{
		Instance: entry.Instance,
		ID:       id,
		Name:     name,
		Addrs:    addrs,
		Port:     uint16(entry.Port),
	}
}

// mergeAddresses adds new addresses to the existing list, avoiding
// duplicates.
func mergeAddresses(existing, found []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range found {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses named by a removal entry.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
