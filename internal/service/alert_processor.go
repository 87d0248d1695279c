package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/pkg/logger"
	"schoolnotify/pkg/metrics"
	"schoolnotify/pkg/otel"
	"schoolnotify/pkg/util"
)

// ReasonMalformedAlert rejects alerts without an id; they cannot be deduped.
const ReasonMalformedAlert = "malformed_alert"

// AlertProcessor drives one candidate through verification, dedup and
// dispatch: Candidate -> Verifying -> Rejected | Eligible -> Deduped | Sending -> Sent | Failed.
type AlertProcessor struct {
	verifier   *EligibilityVerifier
	dedup      Deduplicator
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewAlertProcessor(verifier *EligibilityVerifier, dedup Deduplicator, dispatcher *Dispatcher, logger *zap.Logger) *AlertProcessor {
	return &AlertProcessor{
		verifier:   verifier,
		dedup:      dedup,
		dispatcher: dispatcher,
		logger:     logger.Named("processor"),
	}
}

// Handle processes c to a terminal outcome. It never panics or returns an
// error; every failure is reported in the result.
func (p *AlertProcessor) Handle(ctx context.Context, c model.Candidate) (res model.DispatchResult) {
	ctx, span := otel.StartSpan(ctx, "alert.process",
		attribute.String("alert.id", c.Alert.ID),
		attribute.String("alert.type", c.Alert.Type),
		attribute.String("recipient.role", string(c.Role)),
		attribute.String("container", c.Container.String()),
	)
	log := logger.WithTrace(ctx, p.logger).With(
		zap.String("alert_id", c.Alert.ID),
		zap.String("alert_type", c.Alert.Type),
		zap.String("role", string(c.Role)),
		zap.String("recipient_id", c.RecipientID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while processing alert", zap.Any("panic", r))
			res = model.DispatchResult{Outcome: model.OutcomeFailed, Err: fmt.Errorf("processor panic: %v", r)}
		}
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		if res.Err != nil {
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
		metrics.IncrementDispatch(string(c.Role), string(res.Outcome))
	}()

	if strings.TrimSpace(c.Alert.ID) == "" {
		log.Warn("Skipping alert without id")
		return model.DispatchResult{Outcome: model.OutcomeRejected, Reason: ReasonMalformedAlert}
	}

	verdict := p.verifier.Verify(ctx, c.Alert, c.Role, c.RecipientID)
	if !verdict.OK {
		if verdict.Err != nil {
			log.Error("Alert verification failed",
				zap.String("reason", verdict.Reason),
				zap.String("error_type", util.ClassifyError(verdict.Err)),
				zap.Error(verdict.Err),
			)
		} else {
			log.Info("Alert not eligible", zap.String("reason", verdict.Reason))
		}
		return model.DispatchResult{Outcome: model.OutcomeRejected, Reason: verdict.Reason, Err: verdict.Err}
	}

	if !p.dedup.TryAcquire(ctx, c.Alert.ID, c.RecipientID) {
		log.Info("Alert already notified within cooldown")
		return model.DispatchResult{Outcome: model.OutcomeDeduped}
	}

	return p.dispatcher.Dispatch(ctx, verdict.Alert, verdict.Token, c.Role, c.RecipientID)
}
