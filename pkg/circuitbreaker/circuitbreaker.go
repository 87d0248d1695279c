package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State 表示熔断器状态
type State int

const (
	StateClosed   State = iota // 关闭：正常状态，允许请求通过
	StateOpen                  // 打开：熔断状态，直接拒绝请求
	StateHalfOpen              // 半开：尝试恢复，允许少量请求通过
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config 熔断器配置
type Config struct {
	// 失败阈值：连续失败多少次后打开熔断器
	FailureThreshold int
	// 成功阈值：半开状态下成功多少次后关闭熔断器
	SuccessThreshold int
	// 超时时间：打开状态持续多久后进入半开状态
	Timeout time.Duration
	// 半开状态下的最大请求数
	HalfOpenMaxRequests int
	// OnStateChange is called with the lock released after every transition.
	OnStateChange func(from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker 熔断器
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	state         State
	failureCount  int
	successCount  int
	halfOpenCount int
	lastStateTime time.Time

	mu sync.Mutex
}

// NewCircuitBreaker 创建新的熔断器
func NewCircuitBreaker(config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = DefaultConfig().HalfOpenMaxRequests
	}
	return &CircuitBreaker{
		config:        config,
		now:           time.Now,
		state:         StateClosed,
		lastStateTime: time.Now(),
	}
}

// Execute 执行函数，带熔断保护
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	from := cb.state
	cb.checkStateTransition()

	switch cb.state {
	case StateOpen:
		to := cb.state
		cb.mu.Unlock()
		cb.notify(from, to)
		return ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			to := cb.state
			cb.mu.Unlock()
			cb.notify(from, to)
			return ErrCircuitBreakerOpen
		}
		cb.halfOpenCount++
	}
	mid := cb.state
	cb.mu.Unlock()
	cb.notify(from, mid)

	err := fn()

	cb.mu.Lock()
	before := cb.state
	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	after := cb.state
	cb.mu.Unlock()
	cb.notify(before, after)

	return err
}

// checkStateTransition 打开状态超时后进入半开状态
func (cb *CircuitBreaker) checkStateTransition() {
	if cb.state == StateOpen && cb.now().Sub(cb.lastStateTime) >= cb.config.Timeout {
		cb.setState(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	cb.lastStateTime = cb.now()
	cb.halfOpenCount = 0
	cb.successCount = 0
	if s == StateClosed {
		cb.failureCount = 0
	}
}

// onFailure 处理失败
func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	switch cb.state {
	case StateHalfOpen:
		// 半开状态下失败，立即打开
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	}
}

// onSuccess 处理成功
func (cb *CircuitBreaker) onSuccess() {
	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		cb.halfOpenCount--
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// GetState 获取当前状态（线程安全）
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset 重置熔断器
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
}

// 错误定义
var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)
