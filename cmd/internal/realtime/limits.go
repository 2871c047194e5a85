package realtime

import "time"

// Per-connection budget. Every value except maxFrameBytes and the minimum
// queue size can be overridden through PETLINK_WS_*.
const (
	// maxFrameBytes caps one inbound frame. A message_send carrying
	// messaging.MaxContentRunes four-byte runes still fits with its envelope.
	maxFrameBytes = 64 << 10

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	wsMaxPingFailures = 3

	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second

	// Origin is required and only localhost is allowed unless configured.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)
