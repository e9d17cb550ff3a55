package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// stepFunc performs the work of one state and moves the attempt to its next
// state. wait reports that the attempt must pause for outside input. Only
// infrastructure failures are returned as errors; step failures become a
// failed attempt.
type stepFunc func(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt) (wait bool, err error)

func (s *service) run(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt) error {
	for {
		step, ok := s.steps[attempt.State]
		if !ok {
			return nil
		}
		state := attempt.State
		started := s.now()
		wait, err := step(s.logContext(ctx, attempt), sess, attempt)
		s.metrics.ObserveStep(state.String(), s.now().Sub(started))
		if err != nil {
			return err
		}
		if err := s.persist(ctx, sess, attempt); err != nil {
			return err
		}
		if wait || attempt.State.IsTerminal() {
			return nil
		}
	}
}

func (s *service) submitOrder(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt) (bool, error) {
	items := make([]orders.ItemInput, 0, len(attempt.CartSnapshot))
	for _, line := range attempt.CartSnapshot {
		items = append(items, orders.ItemInput{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()
	order, err := s.orders.SubmitOrder(stepCtx, orders.CreateOrderInput{
		UserID:         sess.UserID,
		Shipping:       *attempt.Shipping,
		Items:          items,
		Currency:       attempt.Currency,
		IdempotencyKey: idempotencyKey(attempt, "order"),
	})
	if err != nil {
		s.fail(ctx, sess, attempt, enums.CheckoutFailureOrderSubmission, failureMessage(err, "order submission failed"), nil)
		return false, nil
	}

	total := order.TotalAmount
	attempt.OrderID = &order.ID
	attempt.ChargedAmount = &total
	if order.Currency != "" {
		attempt.Currency = order.Currency
	}
	attempt.State = enums.CheckoutStateCreatingPayment
	return false, nil
}

func (s *service) createPayment(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt) (bool, error) {
	if attempt.ChargedAmount == nil || attempt.OrderID == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "checkout attempt lost its order reference")
	}
	amount := *attempt.ChargedAmount
	s.checkDivergence(ctx, attempt, amount)

	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()
	intent, err := s.gateway.CreateIntent(stepCtx, payments.CreateIntentParams{
		Amount:         amount,
		Currency:       attempt.Currency,
		IdempotencyKey: idempotencyKey(attempt, "intent"),
		Metadata: map[string]string{
			payments.MetadataOrderID:           attempt.OrderID.String(),
			payments.MetadataCheckoutAttemptID: attempt.ID.String(),
			payments.MetadataUserID:            sess.UserID.String(),
		},
	})
	if err != nil {
		s.fail(ctx, sess, attempt, enums.CheckoutFailurePayment, failureMessage(err, "payment failed"), nil)
		return false, nil
	}

	attempt.PaymentIntentID = &intent.ID
	attempt.State = enums.CheckoutStateConfirmingPayment
	return false, nil
}

func (s *service) confirmPayment(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt) (bool, error) {
	if attempt.PaymentIntentID == nil || attempt.ChargedAmount == nil || attempt.PaymentMethodID == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "checkout attempt lost its payment reference")
	}

	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()
	intent, err := s.gateway.ConfirmIntent(stepCtx, payments.ConfirmIntentParams{
		IntentID:        *attempt.PaymentIntentID,
		Amount:          *attempt.ChargedAmount,
		Currency:        attempt.Currency,
		PaymentMethodID: *attempt.PaymentMethodID,
		IdempotencyKey:  idempotencyKey(attempt, "confirm"),
	})
	if err != nil {
		s.fail(ctx, sess, attempt, enums.CheckoutFailurePayment, failureMessage(err, "payment failed"), nil)
		return false, nil
	}
	return s.applyIntent(ctx, sess, attempt, intent)
}

// applyIntent maps a gateway intent status onto the attempt.
func (s *service) applyIntent(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt, intent *payments.Intent) (bool, error) {
	switch {
	case intent.Status.IsSuccess():
		return s.settle(ctx, sess, attempt, intent)
	case intent.Status.IsPending():
		s.logg.Info(ctx, "payment processing, awaiting resync")
		return true, nil
	default:
		s.fail(ctx, sess, attempt, enums.CheckoutFailurePayment, intentFailureMessage(intent), intent)
		return false, nil
	}
}

func (s *service) settle(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt, intent *payments.Intent) (bool, error) {
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()
	if err := s.orders.ConfirmOrder(stepCtx, sess.UserID, *attempt.OrderID, intent.ID); err != nil {
		s.logg.Error(ctx, "confirm order after successful payment", err)
		return true, nil
	}
	if err := s.carts.Clear(ctx, sess.ID); err != nil {
		s.logg.Error(ctx, "clear cart after settled checkout", err)
	}

	now := s.now()
	attempt.SettledAt = &now
	attempt.State = enums.CheckoutStateSettled
	return false, nil
}

func (s *service) fail(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt, kind enums.CheckoutFailureKind, message string, intent *payments.Intent) {
	attempt.State = enums.CheckoutStateFailed
	attempt.FailureKind = &kind
	attempt.FailureMessage = &message

	if err := s.compensate(ctx, sess, attempt, intent); err != nil {
		s.logg.Error(ctx, "checkout compensation incomplete", err)
	}
}

// compensate cancels the intent and the order created by a failed run.
func (s *service) compensate(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt, intent *payments.Intent) error {
	stepCtx, cancel := s.stepContext(ctx)
	defer cancel()

	var errs error
	if attempt.PaymentIntentID != nil && (intent == nil || cancellable(intent.Status)) {
		if _, err := s.gateway.CancelIntent(stepCtx, *attempt.PaymentIntentID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel payment intent %s: %w", *attempt.PaymentIntentID, err))
		}
	}
	if attempt.OrderID != nil {
		reason := "checkout failed"
		if attempt.FailureMessage != nil {
			reason += ": " + *attempt.FailureMessage
		}
		if err := s.orders.CancelOrder(stepCtx, sess.UserID, *attempt.OrderID, reason); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", *attempt.OrderID, err))
		}
	}
	return errs
}

// persist saves the attempt; terminal attempts also emit their outcome event
// in the same transaction.
func (s *service) persist(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt) error {
	if !attempt.State.IsTerminal() {
		return s.save(ctx, attempt)
	}

	event, hasEvent := outcomeEvent(sess, attempt)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, attempt); err != nil {
			return err
		}
		if !hasEvent {
			return nil
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return saveError(err)
	}

	kind := ""
	if attempt.FailureKind != nil {
		kind = attempt.FailureKind.String()
	}
	s.metrics.IncOutcome(attempt.State.String(), kind)
	s.logg.Info(s.logg.WithField(s.logContext(ctx, attempt), "state", attempt.State.String()), "checkout attempt finished")
	return nil
}

func outcomeEvent(sess *session.Session, attempt *models.CheckoutAttempt) (outbox.DomainEvent, bool) {
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateCheckoutAttempt,
		AggregateID:   attempt.ID,
		Actor:         &outbox.ActorRef{UserID: sess.UserID, SessionID: sess.ID},
	}
	switch attempt.State {
	case enums.CheckoutStateSettled:
		var amount decimal.Decimal
		if attempt.ChargedAmount != nil {
			amount = *attempt.ChargedAmount
		}
		data := payloads.CheckoutSettledEvent{AttemptID: attempt.ID, Amount: amount, Currency: attempt.Currency}
		if attempt.OrderID != nil {
			data.OrderID = *attempt.OrderID
		}
		if attempt.PaymentIntentID != nil {
			data.PaymentIntentID = *attempt.PaymentIntentID
		}
		event.EventType = enums.EventCheckoutSettled
		event.Data = data
		return event, true
	case enums.CheckoutStateFailed:
		data := payloads.CheckoutFailedEvent{AttemptID: attempt.ID, OrderID: attempt.OrderID}
		if attempt.FailureKind != nil {
			data.Kind = *attempt.FailureKind
		}
		if attempt.FailureMessage != nil {
			data.Message = *attempt.FailureMessage
		}
		event.EventType = enums.EventCheckoutFailed
		event.Data = data
		return event, true
	default:
		return event, false
	}
}

func (s *service) checkDivergence(ctx context.Context, attempt *models.CheckoutAttempt, charged decimal.Decimal) {
	if attempt.ClientBreakdown == nil || attempt.ClientBreakdown.Total.Equal(charged) {
		return
	}
	s.metrics.IncPriceDivergence()
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"client_total": attempt.ClientBreakdown.Total.StringFixed(2),
		"order_total":  charged.StringFixed(2),
	}), "client total differs from order total, charging order total")
}

func idempotencyKey(attempt *models.CheckoutAttempt, op string) string {
	if attempt.IdempotencyToken == nil {
		return ""
	}
	return *attempt.IdempotencyToken + ":" + op
}

func cancellable(status enums.PaymentIntentStatus) bool {
	switch status {
	case enums.PaymentIntentCanceled, enums.PaymentIntentSucceeded, enums.PaymentIntentProcessing:
		return false
	default:
		return true
	}
}

func failureMessage(err error, fallback string) string {
	var perr *payments.Error
	if errors.As(err, &perr) && perr.Reason != "" {
		return perr.Reason
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

func intentFailureMessage(intent *payments.Intent) string {
	if intent.FailureReason != "" {
		return intent.FailureReason
	}
	switch intent.Status {
	case enums.PaymentIntentRequiresAction:
		return "payment requires additional authentication"
	case enums.PaymentIntentRequiresPaymentMethod:
		return "payment method was declined"
	case enums.PaymentIntentCanceled:
		return "payment was canceled"
	default:
		return fmt.Sprintf("payment ended in status %s", intent.Status)
	}
}
