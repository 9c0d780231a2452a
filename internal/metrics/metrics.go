package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
)

// Directory write outcomes
const (
	WriteOK      = "ok"
	WriteFailed  = "failed"
	WriteDropped = "dropped"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Signaling metrics
	SignalingEventsReceived  int64
	SignalingEventsProcessed int64
	SignalingEventsInvalid   int64

	// Routing metrics
	SessionsCreated    int64
	AdmissionsGranted  int64
	AdmissionsDenied   int64
	CallsQueued        int64
	ManualAssignments  int64
	callsEndedByReason map[types.EndReason]int64

	// Directory metrics
	DirectoryRefreshOK     int64
	DirectoryRefreshFailed int64
	directoryWrites        map[string]int64
	lastDirectorySize      int

	// Dispatch metrics
	EventsDispatched int64
	EventsDropped    int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	activeConnections            int64

	// Occupancy gauges
	activeSessions int
	agentsByStatus map[types.AgentStatus]int

	// HTTP metrics
	httpRequestsTotal map[string]map[int]int64 // endpoint -> status -> count

	startTime time.Time
}

var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		callsEndedByReason: make(map[types.EndReason]int64),
		directoryWrites:    make(map[string]int64),
		agentsByStatus:     make(map[types.AgentStatus]int),
		httpRequestsTotal:  make(map[string]map[int]int64),
		startTime:          time.Now(),
	}
}

// RecordSignalingEvent counts an inbound signaling notification
func (m *Metrics) RecordSignalingEvent() {
	m.mu.Lock()
	m.SignalingEventsReceived++
	m.mu.Unlock()
}

// RecordSignalingProcessed counts a notification handled by the state machine
func (m *Metrics) RecordSignalingProcessed() {
	m.mu.Lock()
	m.SignalingEventsProcessed++
	m.mu.Unlock()
}

// RecordSignalingInvalid counts a notification that failed validation
func (m *Metrics) RecordSignalingInvalid() {
	m.mu.Lock()
	m.SignalingEventsInvalid++
	m.mu.Unlock()
}

// RecordSessionCreated counts a new call session
func (m *Metrics) RecordSessionCreated() {
	m.mu.Lock()
	m.SessionsCreated++
	m.mu.Unlock()
}

// RecordAdmission counts an admission decision
func (m *Metrics) RecordAdmission(granted bool) {
	m.mu.Lock()
	if granted {
		m.AdmissionsGranted++
	} else {
		m.AdmissionsDenied++
	}
	m.mu.Unlock()
}

// RecordCallQueued counts a call handed to the queue
func (m *Metrics) RecordCallQueued() {
	m.mu.Lock()
	m.CallsQueued++
	m.mu.Unlock()
}

// RecordManualAssignment counts an operator assignment
func (m *Metrics) RecordManualAssignment() {
	m.mu.Lock()
	m.ManualAssignments++
	m.mu.Unlock()
}

// RecordCallEnded counts a terminated session by end reason
func (m *Metrics) RecordCallEnded(reason types.EndReason) {
	m.mu.Lock()
	m.callsEndedByReason[reason]++
	m.mu.Unlock()
}

// RecordDirectoryRefresh counts a directory sync cycle
func (m *Metrics) RecordDirectoryRefresh(ok bool, size int) {
	m.mu.Lock()
	if ok {
		m.DirectoryRefreshOK++
		m.lastDirectorySize = size
	} else {
		m.DirectoryRefreshFailed++
	}
	m.mu.Unlock()
}

// RecordDirectoryWrite counts a directory write by outcome
func (m *Metrics) RecordDirectoryWrite(outcome string) {
	m.mu.Lock()
	m.directoryWrites[outcome]++
	m.mu.Unlock()
}

// RecordEventDispatched counts an observer event handed to the sinks
func (m *Metrics) RecordEventDispatched() {
	m.mu.Lock()
	m.EventsDispatched++
	m.mu.Unlock()
}

// RecordEventDropped counts an observer event dropped on a full buffer
func (m *Metrics) RecordEventDropped() {
	m.mu.Lock()
	m.EventsDropped++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// UpdateOccupancy refreshes the session and agent status gauges
func (m *Metrics) UpdateOccupancy(activeSessions int, agents []types.AgentOccupancy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeSessions = activeSessions
	m.agentsByStatus = make(map[types.AgentStatus]int)
	for _, a := range agents {
		m.agentsByStatus[a.Status]++
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++
}

// HTTPRequests returns the count of requests for an endpoint and status
func (m *Metrics) HTTPRequests(endpoint string, statusCode int) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.httpRequestsTotal[endpoint][statusCode]
}

// CallsEnded returns the count of calls ended with the given reason
func (m *Metrics) CallsEnded(reason types.EndReason) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callsEndedByReason[reason]
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		write("ccr_uptime_seconds", time.Since(m.startTime).Seconds())

		write("ccr_signaling_events_received_total", m.SignalingEventsReceived)
		write("ccr_signaling_events_processed_total", m.SignalingEventsProcessed)
		write("ccr_signaling_events_invalid_total", m.SignalingEventsInvalid)

		write("ccr_sessions_created_total", m.SessionsCreated)
		write("ccr_sessions_active", m.activeSessions)
		write("ccr_admissions_total", m.AdmissionsGranted, "result", "granted")
		write("ccr_admissions_total", m.AdmissionsDenied, "result", "denied")
		write("ccr_calls_queued_total", m.CallsQueued)
		write("ccr_manual_assignments_total", m.ManualAssignments)

		reasons := make([]string, 0, len(m.callsEndedByReason))
		for reason := range m.callsEndedByReason {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			write("ccr_calls_ended_total", m.callsEndedByReason[types.EndReason(reason)], "reason", reason)
		}

		for status, count := range m.agentsByStatus {
			write("ccr_agents_by_status", count, "status", string(status))
		}

		write("ccr_directory_refresh_total", m.DirectoryRefreshOK, "result", "ok")
		write("ccr_directory_refresh_total", m.DirectoryRefreshFailed, "result", "failed")
		write("ccr_directory_assignments", m.lastDirectorySize)
		for outcome, count := range m.directoryWrites {
			write("ccr_directory_writes_total", count, "result", outcome)
		}

		write("ccr_events_dispatched_total", m.EventsDispatched)
		write("ccr_events_dropped_total", m.EventsDropped)

		write("ccr_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("ccr_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("ccr_websocket_active_connections", m.activeConnections)

		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("ccr_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
