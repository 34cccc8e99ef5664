package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	TransferRef string    `json:"transfer_ref"`
	UserID      int64     `json:"user_id,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Status      string    `json:"status"`
	Details     any       `json:"details,omitempty"`
}

// Logger emits ledger audit events as JSON lines. Validation-class refusals
// are not routed here; only applied mutations and infrastructure faults are.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogTransfer(transferRef string, senderID, recipientID, amount int64, status string) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   "TRANSFER",
		TransferRef: transferRef,
		Amount:      amount,
		Status:      status,
		Details: map[string]int64{
			"sender_id":    senderID,
			"recipient_id": recipientID,
		},
	}
	a.log(event)
}

func (a *Logger) LogAdjustment(transferRef string, userID, delta int64, reason string) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   "ADMIN_ADJUSTMENT",
		TransferRef: transferRef,
		UserID:      userID,
		Amount:      delta,
		Status:      "SUCCESS",
		Details:     map[string]string{"reason": reason},
	}
	a.log(event)
}

func (a *Logger) LogError(transferRef string, userID int64, err error) {
	event := Event{
		Timestamp:   time.Now(),
		EventType:   "ERROR",
		TransferRef: transferRef,
		UserID:      userID,
		Status:      "FAILED",
		Details:     map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
