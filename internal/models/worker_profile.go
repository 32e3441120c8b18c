package models

import "github.com/google/uuid"

// WorkerProfile holds the payout destination a worker registered with the
// platform. Only the fields the transfer flow needs are modeled here.
type WorkerProfile struct {
	WorkerID      uuid.UUID `json:"worker_id"`
	BankCode      string    `json:"bank_code"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
}
