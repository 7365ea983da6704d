// Package state implements StateMonitor: TTL-cached sampling of local
// system resource usage and a network probe against the cloud node's
// health endpoint, grounded on the teacher's guard-the-map-under-a-mutex
// convention (internal/backpressure, internal/telemetry).
package state

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"inferouter/internal/domain"
)

var errProbeStatus = errors.New("network probe: non-2xx from cloud health endpoint")

const (
	systemTTL  = 100 * time.Millisecond
	networkTTL = 2 * time.Second

	defaultWeakNetworkRTTMs = 150.0
	probeTimeout            = 5 * time.Second
	maxPacketLossRate       = 0.5
	weakNetworkLossRate     = 0.1
)

// Sampler abstracts the source of raw CPU/memory/GPU readings so tests can
// inject deterministic values without touching the real host.
type Sampler interface {
	Sample() domain.SystemStats
}

// Prober performs the network health check. The default implementation
// issues an HTTP GET against the cloud's /health endpoint.
type Prober interface {
	Probe(ctx context.Context) (rttMs float64, err error)
}

// Monitor is the process-singleton StateMonitor.
type Monitor struct {
	mu sync.Mutex

	sampler Sampler
	prober  Prober

	weakNetworkRTTMs float64

	sysCache    domain.SystemStats
	sysCachedAt time.Time

	netCache    domain.NetworkStats
	netCachedAt time.Time

	consecutiveFailures int

	// simSystem and simNetwork, when non-nil, replace real sampling for
	// their axis (used by the experiment harness / POST /admin/simulate).
	simSystem  *domain.SystemStats
	simNetwork *domain.NetworkStats
}

// New creates a Monitor with the given weak-network RTT threshold (ms).
func New(sampler Sampler, prober Prober, weakNetworkRTTMs float64) *Monitor {
	if weakNetworkRTTMs <= 0 {
		weakNetworkRTTMs = defaultWeakNetworkRTTMs
	}
	return &Monitor{
		sampler:          sampler,
		prober:           prober,
		weakNetworkRTTMs: weakNetworkRTTMs,
	}
}

// SampleSystem returns the (possibly cached) current system stats.
func (m *Monitor) SampleSystem() domain.SystemStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.simSystem != nil {
		return *m.simSystem
	}

	if time.Since(m.sysCachedAt) < systemTTL && !m.sysCachedAt.IsZero() {
		return m.sysCache
	}

	stats := m.sampler.Sample()
	stats.Timestamp = time.Now().UTC()
	m.sysCache = stats
	m.sysCachedAt = stats.Timestamp
	return stats
}

// ProbeNetwork returns the (possibly cached) network stats. Pass force=true
// to bypass the TTL cache and probe immediately.
func (m *Monitor) ProbeNetwork(ctx context.Context, force bool) domain.NetworkStats {
	m.mu.Lock()
	if m.simNetwork != nil {
		defer m.mu.Unlock()
		return *m.simNetwork
	}
	if !force && !m.netCachedAt.IsZero() && time.Since(m.netCachedAt) < networkTTL {
		cached := m.netCache
		m.mu.Unlock()
		return cached
	}
	prober := m.prober
	failures := m.consecutiveFailures
	m.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	rtt, err := prober.Probe(probeCtx)

	m.mu.Lock()
	defer m.mu.Unlock()

	var stats domain.NetworkStats
	if err != nil {
		failures = m.consecutiveFailures + 1
		m.consecutiveFailures = failures
		lossRate := float64(failures) / 10.0
		if lossRate > maxPacketLossRate {
			lossRate = maxPacketLossRate
		}
		stats = domain.NetworkStats{
			RTTMs:          5000,
			BandwidthMbps:  0,
			PacketLossRate: lossRate,
			IsWeakNetwork:  true,
			Timestamp:      time.Now().UTC(),
		}
	} else {
		m.consecutiveFailures = 0
		stats = domain.NetworkStats{
			RTTMs:          rtt,
			BandwidthMbps:  estimateBandwidth(rtt),
			PacketLossRate: 0,
			Timestamp:      time.Now().UTC(),
		}
		stats.IsWeakNetwork = stats.RTTMs > m.weakNetworkRTTMs || stats.PacketLossRate > weakNetworkLossRate
	}

	m.netCache = stats
	m.netCachedAt = stats.Timestamp
	return stats
}

// estimateBandwidth is a crude inverse-RTT estimate used only as a rough
// signal; the system never depends on its absolute accuracy.
func estimateBandwidth(rttMs float64) float64 {
	if rttMs <= 0 {
		return 1000
	}
	est := 1000 / rttMs * 10
	if est > 1000 {
		est = 1000
	}
	return est
}

// SetSimulation overrides both samples with test-injected values. Passing
// nil for a field restores real sampling for that axis.
func (m *Monitor) SetSimulation(sys *domain.SystemStats, net *domain.NetworkStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simSystem = sys
	m.simNetwork = net
}

// ClearSimulation restores real sampling for both axes.
func (m *Monitor) ClearSimulation() {
	m.SetSimulation(nil, nil)
}

// RuntimeSampler is the production Sampler: it reads Go runtime memory
// stats for MemoryAvailableMB. CPU and GPU usage are not measured: they
// are always reported as 0.
type RuntimeSampler struct {
	Device domain.DeviceType
}

// Sample implements Sampler.
func (s RuntimeSampler) Sample() domain.SystemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	device := s.Device
	if device == "" {
		device = domain.DeviceCPU
	}

	availableMB := float64(ms.Sys-ms.Alloc) / (1024 * 1024)
	if availableMB < 0 {
		availableMB = 0
	}

	return domain.SystemStats{
		CPUUsagePercent:   loadEstimate(),
		MemoryAvailableMB: availableMB,
		GPUUsagePercent:   0,
		GPUMemoryFreeMB:   0,
		DeviceType:        device,
	}
}

func loadEstimate() float64 {
	return 0
}

// HTTPProber probes a cloud health endpoint over HTTP.
type HTTPProber struct {
	Client      *http.Client
	HealthURL   string
}

// NewHTTPProber builds a prober against the given cloud health URL.
func NewHTTPProber(healthURL string) *HTTPProber {
	return &HTTPProber{
		Client:    &http.Client{Timeout: probeTimeout},
		HealthURL: healthURL,
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.HealthURL, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)
	if resp.StatusCode >= 400 {
		return 0, errProbeStatus
	}
	return float64(elapsed.Microseconds()) / 1000.0, nil
}
