package webhook

import "encoding/json"

// payload is the outer webhook envelope. data stays raw until the event type
// is known; each recognized event decodes into its own variant below.
type payload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (p *payload) hasData() bool {
	return len(p.Data) > 0 && string(p.Data) != "null"
}

// chargeData is the charge.completed variant. Everything here is untrusted:
// the ids are only used to re-fetch the transaction from the provider.
type chargeData struct {
	ID     int64   `json:"id"`
	TxRef  string  `json:"tx_ref"`
	FlwRef string  `json:"flw_ref"`
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
	Meta   struct {
		BookingID string `json:"booking_id"`
	} `json:"meta"`
}

// transferData is the transfer.completed variant.
type transferData struct {
	ID        int64   `json:"id"`
	Reference string  `json:"reference"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
}
