package services

import (
	"context"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// InvokerConfig controls how a host calls one plugin
type InvokerConfig struct {
	// Name labels the plugin in logs, metrics and the breaker
	Name string
	// CallTimeout bounds each attempt. Zero means no per-attempt deadline.
	CallTimeout time.Duration
	// Retry applies to internal and unavailable faults only. Nil disables retries.
	Retry *utils.RetryConfig
	// Breaker guards the plugin. Nil disables the circuit breaker.
	Breaker *utils.CircuitBreakerConfig
	// MaxInflight caps concurrent Process calls from this host. Zero means no cap.
	MaxInflight int
}

// DefaultInvokerConfig returns the settings the CLI uses
func DefaultInvokerConfig(name string) InvokerConfig {
	return InvokerConfig{
		Name:        name,
		CallTimeout: 30 * time.Second,
		Retry:       utils.DefaultRetryConfig(),
		Breaker:     utils.DefaultCircuitBreakerConfig(name),
	}
}

// Invoker wraps a PluginService with the host's call policy: a timeout per
// attempt, retries, a circuit breaker and conformance checks on every answer.
// It is itself a PluginService.
type Invoker struct {
	target   PluginService
	config   InvokerConfig
	retry    *utils.RetryExecutor
	breaker  *utils.CircuitBreaker
	slots    chan struct{}
	recorder InvokerRecorder
	logger   *utils.Logger
}

// NewInvoker creates an invoker for target. recorder may be nil.
func NewInvoker(target PluginService, config InvokerConfig, recorder InvokerRecorder, logger *utils.Logger) *Invoker {
	if logger == nil {
		logger = utils.GetLogger()
	}

	inv := &Invoker{
		target:   target,
		config:   config,
		recorder: recorder,
		logger:   logger,
	}

	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = &utils.RetryConfig{MaxAttempts: 1}
	}
	inv.retry = utils.NewRetryExecutor(retryConfig, logger)

	if config.Breaker != nil {
		breakerConfig := *config.Breaker
		if breakerConfig.Name == "" {
			breakerConfig.Name = config.Name
		}
		userHook := breakerConfig.OnStateChange
		breakerConfig.OnStateChange = func(name string, from, to utils.CircuitBreakerState) {
			if inv.recorder != nil {
				inv.recorder.SetCircuitState(config.Name, to)
			}
			if userHook != nil {
				userHook(name, from, to)
			}
		}
		inv.breaker = utils.NewCircuitBreaker(&breakerConfig, logger)
	}

	if config.MaxInflight > 0 {
		inv.slots = make(chan struct{}, config.MaxInflight)
	}
	return inv
}

// Process implements PluginService
func (inv *Invoker) Process(ctx context.Context, req *models.ProcessRequest) (*models.ProcessResponse, error) {
	if req == nil {
		req = &models.ProcessRequest{}
	}
	if err := inv.acquire(ctx); err != nil {
		inv.observe(models.MethodProcess, err)
		return nil, err
	}
	defer inv.release()

	var out *models.ProcessResponse
	err := inv.invoke(ctx, models.MethodProcess, func(ctx context.Context) error {
		resp, err := inv.target.Process(ctx, req)
		if err != nil {
			return err
		}
		if err := CheckProcessResponse(req, resp); err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetInfo implements PluginService
func (inv *Invoker) GetInfo(ctx context.Context, req *models.InfoRequest) (*models.InfoResponse, error) {
	if req == nil {
		req = &models.InfoRequest{}
	}
	var out *models.InfoResponse
	err := inv.invoke(ctx, models.MethodInfo, func(ctx context.Context) error {
		resp, err := inv.target.GetInfo(ctx, req)
		if err != nil {
			return err
		}
		if err := CheckInfoResponse(resp); err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck implements PluginService
func (inv *Invoker) HealthCheck(ctx context.Context, req *models.HealthRequest) (*models.HealthResponse, error) {
	if req == nil {
		req = &models.HealthRequest{}
	}
	var out *models.HealthResponse
	err := inv.invoke(ctx, models.MethodHealth, func(ctx context.Context) error {
		resp, err := inv.target.HealthCheck(ctx, req)
		if err != nil {
			return err
		}
		if err := CheckHealthResponse(resp); err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BreakerState returns the circuit breaker state, or closed when disabled
func (inv *Invoker) BreakerState() utils.CircuitBreakerState {
	if inv.breaker == nil {
		return utils.StateClosed
	}
	return inv.breaker.GetState()
}

// invoke runs call under the retry policy and breaker and reduces any
// failure to a single fault
func (inv *Invoker) invoke(ctx context.Context, operation string, call func(context.Context) error) error {
	attempts := 0
	err := inv.retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		if attempts > 1 && inv.recorder != nil {
			inv.recorder.RecordRetry(inv.config.Name, operation)
		}
		return inv.attempt(ctx, call)
	})

	if err != nil {
		fault := utils.AsFault(err)
		log := inv.logger.WithSource("invoker").WithContext(map[string]interface{}{
			"plugin":    inv.config.Name,
			"operation": operation,
		})
		fields := map[string]interface{}{
			"attempts":          attempts,
			"code":              string(fault.Code),
			"retries_exhausted": utils.IsRetryableError(err),
		}
		if inv.breaker != nil {
			fields["breaker"] = inv.breaker.GetStats()
		}
		log.Debug("Plugin call failed", fields)
		inv.observe(operation, fault)
		return fault
	}
	inv.observe(operation, nil)
	return nil
}

func (inv *Invoker) attempt(ctx context.Context, call func(context.Context) error) error {
	run := func(ctx context.Context) error {
		if inv.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, inv.config.CallTimeout)
			defer cancel()
		}
		return call(ctx)
	}
	if inv.breaker == nil {
		return run(ctx)
	}
	return inv.breaker.Execute(ctx, run)
}

func (inv *Invoker) acquire(ctx context.Context) error {
	if inv.slots == nil {
		return nil
	}
	select {
	case inv.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return utils.Unavailable("no process slot available before the deadline")
	}
}

func (inv *Invoker) release() {
	if inv.slots != nil {
		<-inv.slots
	}
}

func (inv *Invoker) observe(operation string, err error) {
	if inv.recorder == nil {
		return
	}
	inv.recorder.ObserveHostCall(inv.config.Name, operation, utils.FaultCodeOf(err))
}
