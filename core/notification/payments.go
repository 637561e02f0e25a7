package notification

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/user"
)

type (
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	HallGetter interface {
		GetByID(ctx context.Context, id string) (studyhall.StudyHall, error)
	}

	// PaymentNotifier tells the payer how their payment went: live message, push & email.
	PaymentNotifier struct {
		svc     *Service
		users   UserGetter
		halls   HallGetter
		mailSvc core.EmailService
		logger  core.Logger
	}
)

func NewPaymentNotifier(svc *Service, users UserGetter, halls HallGetter, mailSvc core.EmailService, logger core.Logger) *PaymentNotifier {
	return &PaymentNotifier{svc: svc, users: users, halls: halls, mailSvc: mailSvc, logger: logger}
}

func (pn *PaymentNotifier) TransactionSettled(ctx context.Context, tx payment.Transaction, b booking.Booking) {
	pn.svc.Broadcast(tx.UserID, "payment", tx)

	payer, err := pn.users.GetByID(ctx, tx.UserID)
	if err != nil {
		pn.logger.Error(fmt.Sprintf("notification: getting payer of %s", tx.ClientTxnID), err)
		return
	}
	hall, err := pn.halls.GetByID(ctx, b.StudyHallID)
	if err != nil {
		pn.logger.Error(fmt.Sprintf("notification: getting hall of booking %s", b.ID), err)
		return
	}

	msg := Message{
		UserID: payer.ID,
		Data:   map[string]string{"booking_id": b.ID, "client_txn_id": tx.ClientTxnID, "status": tx.Status},
	}
	email := &core.EmailMessage{
		TemplateData: map[string]interface{}{
			"Name":        payer.Name,
			"HallName":    hall.Name,
			"Seat":        b.Seat,
			"StartDate":   b.StartDate.Format("02 Jan 2006"),
			"EndDate":     b.EndDate.Format("02 Jan 2006"),
			"Amount":      payment.FormatRupees(tx.Amount),
			"BookingID":   b.ID,
			"ClientTxnID": tx.ClientTxnID,
		},
	}
	active := b.Status == booking.StatusConfirmed || b.Status == booking.StatusCompleted
	switch {
	case tx.Status == payment.StatusCompleted && active:
		msg.Title = "Booking confirmed"
		msg.Body = fmt.Sprintf("Seat %s at %s is yours from %s.", b.Seat, hall.Name, b.StartDate.Format("02 Jan"))
		email.Subject = "Your booking is confirmed"
		email.TemplateName = "booking_confirmed"
	case tx.Status == payment.StatusCompleted:
		pn.logger.Warn(fmt.Sprintf("notification: %s paid for %s booking %s, refund due", tx.ClientTxnID, b.Status, b.ID))
		msg.Title = "Payment received"
		msg.Body = fmt.Sprintf("Your booking for seat %s at %s is no longer active. The payment will be refunded.", b.Seat, hall.Name)
		email.Subject = "We received a payment for an inactive booking"
		email.TemplateName = "payment_unapplied"
	case active:
		// paid some other way meanwhile, nothing to tell
		return
	default:
		msg.Title = "Payment failed"
		msg.Body = fmt.Sprintf("Your payment for seat %s at %s did not go through.", b.Seat, hall.Name)
		email.Subject = "Your payment did not go through"
		email.TemplateName = "payment_failed"
	}

	if _, err := pn.svc.NotifyUser(ctx, msg); err != nil {
		pn.logger.Error(fmt.Sprintf("notification: notifying %s", payer.ID), err)
	}
	if payer.Email != "" {
		email.To = []mail.Address{{Name: payer.Name, Address: payer.Email}}
		pn.mailSvc.SendMessages(email)
	}
}
