package ai

import (
	"context"
	"time"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// DefaultPingTimeout bounds each connectivity check.
const DefaultPingTimeout = 5 * time.Second

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator builds the adapter a setting describes and pings it.
// An unset provider passes, since kb runs without one.
type ConfigValidator struct {
	timeout time.Duration
}

// NewConfigValidator returns a validator using DefaultPingTimeout.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{timeout: DefaultPingTimeout}
}

// WithTimeout returns a copy that waits at most d per check.
func (v *ConfigValidator) WithTimeout(d time.Duration) *ConfigValidator {
	return &ConfigValidator{timeout: d}
}

type pinger interface {
	Ping(ctx context.Context) error
	Close() error
}

func (v *ConfigValidator) ping(svc pinger) error {
	defer svc.Close()
	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()
	return svc.Ping(ctx)
}

// ValidateEmbedding checks that the embedding backend answers.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(config)
	if err != nil || svc == nil {
		return err
	}
	return v.ping(svc)
}

// ValidateLLM checks that the chat backend answers.
func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	svc, err := CreateLLMService(config)
	if err != nil || svc == nil {
		return err
	}
	return v.ping(svc)
}
