package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ubuygold/contentmill/internal/keymanager"
	"github.com/ubuygold/contentmill/internal/metrics"
	"github.com/ubuygold/contentmill/internal/model"
)

// Response is the outcome of a dispatched call. Data is set for structured calls.
type Response struct {
	Provider Tag
	Text     string
	Data     map[string]any
}

// Dispatcher runs generation calls against a provider, rotating keys from the vault
// and retrying once with a different key after a failure.
type Dispatcher struct {
	vault    keymanager.Manager
	registry Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. Each vendor call gets its own timeout.
func NewDispatcher(vault keymanager.Manager, registry Registry, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		vault:    vault,
		registry: registry,
		timeout:  timeout,
		logger:   logger.With("component", "dispatcher"),
	}
}

// FindActiveProvider returns the first provider in priority order that has an active key.
func (d *Dispatcher) FindActiveProvider() (Tag, error) {
	for _, tag := range Priority {
		if _, ok := d.registry[tag]; !ok {
			continue
		}
		active, err := d.vault.HasActiveKey(string(tag))
		if err != nil {
			return "", fmt.Errorf("failed to check keys for %s: %w", tag, err)
		}
		if active {
			return tag, nil
		}
	}
	return "", fmt.Errorf("no provider has an active key: %w", model.ErrNoActiveCredential)
}

// GenerateText picks the active provider and returns the raw text of the call.
func (d *Dispatcher) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	tag, err := d.FindActiveProvider()
	if err != nil {
		return "", err
	}
	resp, err := d.GenerateWithRotation(ctx, tag, Request{Prompt: prompt, System: system})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// GenerateJSON picks the active provider and returns the parsed JSON object of the call.
func (d *Dispatcher) GenerateJSON(ctx context.Context, prompt, system string) (map[string]any, error) {
	tag, err := d.FindActiveProvider()
	if err != nil {
		return nil, err
	}
	resp, err := d.GenerateWithRotation(ctx, tag, Request{Prompt: prompt, System: system, Structured: true})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GenerateWithRotation makes at most two vendor calls. After a failed first call the key
// is released as failed and a second key is acquired. If the vault hands back the same
// key no second call is made.
func (d *Dispatcher) GenerateWithRotation(ctx context.Context, tag Tag, req Request) (*Response, error) {
	impl, ok := d.registry[tag]
	if !ok {
		return nil, fmt.Errorf("provider %s is not registered: %w", tag, model.ErrConfiguration)
	}

	first, err := d.vault.Acquire(string(tag))
	if err != nil {
		return nil, err
	}
	text, firstErr := d.call(ctx, tag, impl, first, req)
	if firstErr == nil {
		return d.finish(tag, first, text, req.Structured)
	}
	d.releaseFailure(first)

	if ctx.Err() != nil {
		return nil, firstErr
	}

	second, err := d.vault.Acquire(string(tag))
	if err != nil {
		return nil, fmt.Errorf("%s retry: %w; first attempt: %w", tag, err, firstErr)
	}
	if second.KeyID == first.KeyID {
		d.logger.Warn("Only the failed key is available, not retrying", "provider", tag, "key_id", first.KeyID)
		return nil, firstErr
	}

	d.logger.Info("Retrying with another key", "provider", tag, "failed_key_id", first.KeyID, "key_id", second.KeyID)
	text, secondErr := d.call(ctx, tag, impl, second, req)
	if secondErr == nil {
		return d.finish(tag, second, text, req.Structured)
	}
	d.releaseFailure(second)
	return nil, fmt.Errorf("%s second attempt: %w; first attempt: %w", tag, secondErr, firstErr)
}

func (d *Dispatcher) call(ctx context.Context, tag Tag, impl Provider, lease *keymanager.Lease, req Request) (string, error) {
	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := impl.Generate(callCtx, lease.Secret, req)
	metrics.ProviderDuration.WithLabelValues(string(tag)).Observe(time.Since(start).Seconds())
	metrics.ProviderCalls.WithLabelValues(string(tag), metrics.Outcome(err)).Inc()
	if err != nil {
		d.logger.Warn("Provider call failed", "provider", tag, "key_id", lease.KeyID, "error", err)
		if errors.Is(err, model.ErrProvider) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %w", model.ErrProvider, tag, err)
	}
	return text, nil
}

// finish releases the key as a success and then parses structured output.
// A parse failure is not the key's fault and is never retried.
func (d *Dispatcher) finish(tag Tag, lease *keymanager.Lease, text string, structured bool) (*Response, error) {
	if err := d.vault.ReleaseSuccess(lease.KeyID); err != nil {
		d.logger.Error("Failed to release key", "provider", tag, "key_id", lease.KeyID, "error", err)
	}
	resp := &Response{Provider: tag, Text: text}
	if !structured {
		return resp, nil
	}
	data, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}
	resp.Data = data
	return resp, nil
}

func (d *Dispatcher) releaseFailure(lease *keymanager.Lease) {
	if err := d.vault.ReleaseFailure(lease.KeyID); err != nil {
		d.logger.Error("Failed to record key failure", "key_id", lease.KeyID, "error", err)
	}
}
