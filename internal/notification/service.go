// Package notification turns ledger outcomes into user-facing messages.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gigpay/internal/domain"
	"gigpay/pkg/logger"
)

// Sender delivers a rendered message. pkg/mailer satisfies this.
type Sender interface {
	Send(to, subject, body string) error
}

// Directory resolves a user to a deliverable address.
type Directory interface {
	EmailForUser(ctx context.Context, userID uuid.UUID) (string, error)
}

// Notification is a rendered message ready for delivery.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      string
	Subject   string
	Body      string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// Service is the outbound notification port. Delivery is best effort and
// never blocks or fails a money movement.
type Service interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error
}

type EmailService struct {
	logger    logger.Logger
	sender    Sender
	directory Directory
}

func NewEmailService(log logger.Logger, sender Sender, directory Directory) *EmailService {
	return &EmailService{logger: log, sender: sender, directory: directory}
}

func (s *EmailService) Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error {
	var subject, body string

	switch eventType {
	case domain.EventWalletCredited:
		subject = "Wallet credited"
		body = fmt.Sprintf("Your wallet was credited with %v %v.", data["amount"], data["currency"])
	case domain.EventWalletDebited:
		subject = "Wallet debited"
		body = fmt.Sprintf("%v %v was debited from your wallet.", data["amount"], data["currency"])
	case domain.EventPaymentSucceeded:
		subject = "Payment completed"
		body = fmt.Sprintf("Your payment %v completed successfully.", data["reference"])
	case domain.EventPaymentFailed:
		subject = "Payment failed"
		body = fmt.Sprintf("Your payment %v failed: %v. Any debited funds have been returned.", data["reference"], data["reason"])
	case domain.EventPaymentReversed:
		subject = "Payment reversed"
		body = fmt.Sprintf("Your payment %v was reversed by the provider. Funds have been returned to your wallet.", data["reference"])
	case domain.EventEscrowFunded:
		subject = "Escrow funded"
		body = fmt.Sprintf("Escrow for contract %v is now fully funded.", data["contract_id"])
	case domain.EventEscrowReleased:
		subject = "Escrow released"
		body = fmt.Sprintf("Escrow for contract %v was released. %v %v is now in the freelancer's wallet.", data["contract_id"], data["amount"], data["currency"])
	case domain.EventEscrowDisputed:
		subject = "Escrow disputed"
		body = fmt.Sprintf("Escrow for contract %v has been placed in dispute.", data["contract_id"])
	default:
		subject = "Account update"
		body = fmt.Sprintf("Event: %s", eventType)
	}

	n := &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      eventType,
		Subject:   subject,
		Body:      body,
		Metadata:  data,
		CreatedAt: time.Now(),
	}
	return s.deliver(ctx, n)
}

func (s *EmailService) deliver(ctx context.Context, n *Notification) error {
	to, err := s.directory.EmailForUser(ctx, n.UserID)
	if err != nil || to == "" {
		s.logger.Warn("No deliverable address for user, dropping notification", map[string]interface{}{
			"user_id": n.UserID,
			"type":    n.Type,
		})
		return nil
	}
	if err := s.sender.Send(to, n.Subject, n.Body); err != nil {
		s.logger.Error("Failed to send notification", map[string]interface{}{
			"user_id": n.UserID,
			"type":    n.Type,
			"error":   err.Error(),
		})
		return err
	}
	s.logger.Info("Notification sent", map[string]interface{}{
		"user_id": n.UserID,
		"type":    n.Type,
	})
	return nil
}

// NopService discards notifications. Intended for tests.
type NopService struct{}

func (NopService) Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error {
	return nil
}

// EnvDirectory maps every user to a single operator-configured address.
// Used until the marketplace user service exposes a lookup API.
type EnvDirectory struct {
	Address string
}

func (d EnvDirectory) EmailForUser(ctx context.Context, userID uuid.UUID) (string, error) {
	return d.Address, nil
}
