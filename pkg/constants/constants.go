package constants

import "time"

// Wire backend endpoints
const (
	// ProductionRESTURL is the Wire production REST endpoint
	ProductionRESTURL = "https://prod-nginz-https.wire.com"
	// ProductionWebSocketURL is the Wire production notification stream endpoint
	ProductionWebSocketURL = "wss://prod-nginz-ssl.wire.com"
	// StagingRESTURL is the Wire staging REST endpoint
	StagingRESTURL = "https://staging-nginz-https.zinfra.io"
	// StagingWebSocketURL is the Wire staging notification stream endpoint
	StagingWebSocketURL = "wss://staging-nginz-ssl.zinfra.io"
)

// Timeouts and intervals
const (
	// DefaultRequestTimeout bounds every REST call made to the backend
	DefaultRequestTimeout = 30 * time.Second
	// DefaultHandshakeTimeout bounds the websocket handshake
	DefaultHandshakeTimeout = 10 * time.Second
	// WebSocketPingInterval is how often a keep-alive ping is written to the stream
	WebSocketPingInterval = 30 * time.Second
	// WebSocketWriteWait is the deadline for writing a control frame
	WebSocketWriteWait = 10 * time.Second
	// BrainSaveInterval is how often the brain is flushed to the store
	BrainSaveInterval = 5 * time.Second
	// ShutdownTimeout bounds the graceful shutdown of the HTTP router
	ShutdownTimeout = 5 * time.Second
	// StatusRequestTimeout bounds the status command's health request
	StatusRequestTimeout = 3 * time.Second
)

// Message buffer sizes
const (
	// MessageChannelBufferSize is the buffer size for the robot's receive channel
	MessageChannelBufferSize = 100
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum length before a prefix/suffix is shown
	MinSecretLengthForMasking = 32
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 3
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 3
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
)

// Robot defaults
const (
	// DefaultRobotName is the name the robot answers to when none is configured
	DefaultRobotName = "wirebot"
	// DefaultHTTPPort is the port of the robot's HTTP router
	DefaultHTTPPort = 8080
	// StoreNamespace is the sqlite namespace the Wire account keeps its session data in
	StoreNamespace = "wirebot"
	// BrainNamespace is the sqlite namespace the brain keeps its data in
	BrainNamespace = "brain"
)
