// Package notify fans out custody-change notifications to the other family
// member's registered device. Delivery is best-effort: transport failures
// never affect the mutation that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/calndr/calndr/internal/storage"
)

type Change struct {
	FamilyID    string
	ActorID     string
	CustodianID string
	Date        time.Time
}

type Notifier interface {
	CustodyChanged(ctx context.Context, ch Change)
}

// Payload is the structured message posted to the push transport.
type Payload struct {
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	Body      string `json:"body"`
	Type      string `json:"type"`
	Date      string `json:"date"`
	Custodian string `json:"custodian"`
	Sender    string `json:"sender"`
	DeepLink  string `json:"deep_link"`
}

// Push delivers through an HTTP gateway that accepts
// {"target_arn": ..., "payload": {...}}.
type Push struct {
	store      storage.Store
	client     *http.Client
	gatewayURL string
	authHeader string
	logger     zerolog.Logger
}

func NewPush(store storage.Store, gatewayURL, authHeader string, timeout time.Duration, logger zerolog.Logger) *Push {
	return &Push{
		store:      store,
		client:     &http.Client{Timeout: timeout},
		gatewayURL: gatewayURL,
		authHeader: authHeader,
		logger:     logger,
	}
}

func (p *Push) CustodyChanged(ctx context.Context, ch Change) {
	target, err := p.store.GetNotificationTarget(ctx, ch.FamilyID, ch.ActorID)
	if err != nil {
		if err != storage.ErrNotFound {
			p.logger.Warn().Err(err).Str("family_id", ch.FamilyID).Msg("notification target lookup failed")
		}
		return
	}
	if target.SNSEndpointARN == nil {
		return
	}

	custodian, err := p.store.GetUserByID(ctx, ch.CustodianID)
	if err != nil {
		p.logger.Warn().Err(err).Str("custodian_id", ch.CustodianID).Msg("custodian lookup failed")
		return
	}
	actor, err := p.store.GetUserByID(ctx, ch.ActorID)
	if err != nil {
		p.logger.Warn().Err(err).Str("actor_id", ch.ActorID).Msg("actor lookup failed")
		return
	}

	date := ch.Date.Format("2006-01-02")
	payload := Payload{
		Title:     "Schedule Updated",
		Subtitle:  fmt.Sprintf("%s now has custody", custodian.FirstName),
		Body:      fmt.Sprintf("%s changed the schedule for %s.", actor.FirstName, ch.Date.Format("Monday, January 2")),
		Type:      "custody_change",
		Date:      date,
		Custodian: custodian.FirstName,
		Sender:    actor.FirstName,
		DeepLink:  "calndr://calendar/" + date,
	}

	if err := p.send(ctx, *target.SNSEndpointARN, payload); err != nil {
		p.logger.Warn().Err(err).Str("family_id", ch.FamilyID).Msg("push enqueue failed")
	}
}

func (p *Push) send(ctx context.Context, targetARN string, payload Payload) error {
	if p.gatewayURL == "" {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"target_arn": targetARN,
		"payload":    payload,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authHeader != "" {
		req.Header.Set("Authorization", p.authHeader)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}

// Nop drops all notifications; used in tests and when no gateway is set.
type Nop struct{}

func (Nop) CustodyChanged(context.Context, Change) {}
