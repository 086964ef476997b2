package constants

// Default retry and backoff values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
	DefaultServerPort            = 8084
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultPushReconnectMaxSec   = 60
)

// Default circuit breaker values for the backend API client
const (
	DefaultCircuitMaxFailures  = 5
	DefaultCircuitResetTimeSec = 30
	CBHalfOpenMaxCalls         = 3
)

// Default display settings
const (
	DefaultDisplayTimezone = "UTC"
	DefaultPageSize        = 50
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Encryption salts for the local store. The lookup salt feeds the
// deterministic nonce used for searchable columns.
const (
	EncryptionSalt       = "chatdesk-store-salt-v1"
	EncryptionLookupSalt = "chatdesk-lookup-salt-v1"
)

// Channel sizes
const (
	ServerErrorChannelSize = 1
	PushFeedBufferSize     = 64
)
