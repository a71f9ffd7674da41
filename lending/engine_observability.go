package lending

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	metricCommandDuration    = "lending_command_duration"
	metricCommandRejections  = "lending_command_rejections"
	metricInvariantViolation = "lending_invariant_violations"
	metricStoreErrors        = "lending_store_errors"

	spanNamePrefix    = "lending."
	spanAttrCommand   = "command_type"
	spanAttrErrorType = "error_type"
	statusSuccess     = "success"
	statusError       = "error"

	errorTypeNotFound     = "not_found"
	errorTypePrecondition = "precondition_failed"
	errorTypeInvariant    = "invariant_violation"
	errorTypeStore        = "store_unavailable"
	errorTypeOther        = "other"
)

// classifyError maps an operation error onto the error taxonomy used for
// metrics labels and span attributes.
func classifyError(err error) string {
	switch {
	case IsNotFound(err):
		return errorTypeNotFound
	case IsPreconditionFailed(err):
		return errorTypePrecondition
	case errors.Is(err, ErrInvariantViolation):
		return errorTypeInvariant
	case errors.Is(err, ErrStoreUnavailable):
		return errorTypeStore
	default:
		return errorTypeOther
	}
}

// observeRejection records a rejection that happened before a transaction was
// opened (e.g. resolving an unknown loan id) and passes the error through.
func (e *Engine) observeRejection(ctx context.Context, commandType string, err error) error {
	e.recordCommandMetrics(ctx, commandType, 0, err)
	e.logCommandFailure(ctx, commandType, err)

	return err
}

// logOperation logs committed transitions at info level if a logger is configured.
func (e *Engine) logOperation(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

// logDebug logs per-operation timing at debug level if a logger is configured.
func (e *Engine) logDebug(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

// logCommandFailure logs a failed command. Business rejections are expected
// and logged at info level; invariant violations and store failures at error
// level.
func (e *Engine) logCommandFailure(ctx context.Context, commandType string, err error) {
	errorType := classifyError(err)

	args := []any{
		logAttrCommandType, commandType,
		logAttrError, err.Error(),
		spanAttrErrorType, errorType,
	}

	switch errorType {
	case errorTypeInvariant:
		if e.contextualLogger != nil {
			e.contextualLogger.ErrorContext(ctx, logMsgInvariantViolation, args...)
		} else if e.logger != nil {
			e.logger.Error(logMsgInvariantViolation, args...)
		}

	case errorTypeStore, errorTypeOther:
		if e.contextualLogger != nil {
			e.contextualLogger.ErrorContext(ctx, logMsgCommandRejected, args...)
		} else if e.logger != nil {
			e.logger.Error(logMsgCommandRejected, args...)
		}

	default:
		if e.contextualLogger != nil {
			e.contextualLogger.InfoContext(ctx, logMsgCommandRejected, args...)
		} else if e.logger != nil {
			e.logger.Info(logMsgCommandRejected, args...)
		}
	}
}

// recordCommandMetrics records duration and outcome metrics if a collector is
// configured.
func (e *Engine) recordCommandMetrics(ctx context.Context, commandType string, duration time.Duration, err error) {
	if e.metricsCollector == nil {
		return
	}

	contextual, hasContextual := e.metricsCollector.(ContextualMetricsCollector)

	status := statusSuccess
	if err != nil {
		status = statusError
	}

	labels := map[string]string{
		spanAttrCommand: commandType,
		"status":        status,
	}

	if duration > 0 {
		if hasContextual {
			contextual.RecordDurationContext(ctx, metricCommandDuration, duration, labels)
		} else {
			e.metricsCollector.RecordDuration(metricCommandDuration, duration, labels)
		}
	}

	if err == nil {
		return
	}

	errorLabels := map[string]string{
		spanAttrCommand:   commandType,
		spanAttrErrorType: classifyError(err),
	}

	var counterName string

	switch classifyError(err) {
	case errorTypeInvariant:
		counterName = metricInvariantViolation
	case errorTypeStore:
		counterName = metricStoreErrors
	default:
		counterName = metricCommandRejections
	}

	if hasContextual {
		contextual.IncrementCounterContext(ctx, counterName, errorLabels)
		return
	}

	e.metricsCollector.IncrementCounter(counterName, errorLabels)
}

// startCommandSpan starts a tracing span if a tracing collector is configured.
func (e *Engine) startCommandSpan(ctx context.Context, commandType string) (context.Context, SpanContext) {
	if e.tracingCollector == nil {
		return ctx, nil
	}

	attrs := map[string]string{
		spanAttrCommand: commandType,
	}

	return e.tracingCollector.StartSpan(ctx, spanNamePrefix+commandType, attrs)
}

// finishCommandSpanSuccess finishes a successful command span.
func (e *Engine) finishCommandSpanSuccess(span SpanContext, duration time.Duration) {
	if e.tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{
		logAttrDurationMS: fmt.Sprintf("%.2f", durationToMilliseconds(duration)),
	}

	e.tracingCollector.FinishSpan(span, statusSuccess, attrs)
}

// finishCommandSpanError finishes a command span with error details.
func (e *Engine) finishCommandSpanError(span SpanContext, err error) {
	if e.tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{
		spanAttrErrorType: classifyError(err),
	}

	e.tracingCollector.FinishSpan(span, statusError, attrs)
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds
// with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
