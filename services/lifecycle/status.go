package lifecycle

import "escrowbook/models"

var statusTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:   {models.BookingConfirmed, models.BookingCancelled},
	models.BookingConfirmed: {models.BookingCompleted, models.BookingCancelled, models.BookingDisputed},
	models.BookingDisputed:  {models.BookingCompleted, models.BookingCancelled},
}

var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentPending:   {models.PaymentHeld, models.PaymentSucceeded, models.PaymentFailed},
	models.PaymentHeld:      {models.PaymentSucceeded, models.PaymentReleased, models.PaymentRefunded},
	models.PaymentSucceeded: {models.PaymentReleased, models.PaymentRefunded},
	models.PaymentFailed:    {models.PaymentSucceeded},
}

// CanTransition reports whether the booking status machine allows from -> to.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment status machine allows from -> to.
func CanTransitionPayment(from, to models.PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports statuses with no outgoing transition.
func IsTerminal(s models.BookingStatus) bool {
	return len(statusTransitions[s]) == 0
}
