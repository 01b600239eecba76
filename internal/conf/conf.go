package conf

import "time"

// Bootstrap is the root configuration of the moometrics process.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Auth       *Auth
	Log        *Log
	Weather    *Weather
	Prediction *Prediction
	Task       *Task
}

type Server struct {
	HTTP *Server_Transport
	GRPC *Server_Transport
	// CORSOrigins are the browser origins allowed to call the HTTP API.
	CORSOrigins []string
}

// Server_Transport is shared by the HTTP and gRPC listeners.
type Server_Transport struct {
	Network string
	Addr    string
	Timeout time.Duration
}

type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
	Cache    *Data_Cache
}

type Data_Database struct {
	// Driver is "mysql" or "postgres".
	Driver      string
	Source      string
	AutoMigrate bool
}

type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	DB           int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Data_Cache struct {
	// Backend is "redis" or "memory".
	Backend    string
	MemorySize int
}

type Auth struct {
	Jwt *Auth_JWT
}

type Auth_JWT struct {
	Secret string
}

type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Breaker holds the sliding-window circuit breaker settings of one dependency.
type Breaker struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	TimeWindow       time.Duration
}

type Weather struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	// RateLimit is the number of outbound requests per second, 0 disables limiting.
	RateLimit float64
	RateBurst int
	ProxyURL  string
	Breaker   *Breaker
}

type Prediction struct {
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	ProxyURL string
	Breaker  *Breaker
}

// TaskLeaseMargin is the minimum gap between task.task_timeout and
// task.lease_timeout. The lease must outlive a full attempt including
// its final writes, otherwise lease recovery runs the task a second time.
const TaskLeaseMargin = 30 * time.Second

type Task struct {
	Workers       int
	WorkerEnabled bool
	PollInterval  time.Duration
	LeaseTimeout  time.Duration
	ResultTTL     time.Duration
	TaskTimeout   time.Duration
	Retry         *Task_Retry
}

type Task_Retry struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Jitter     float64
}
