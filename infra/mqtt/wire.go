package mqtt

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Operations of the request/response protocol.
const (
	OpListVehicles        = "list_vehicles"
	OpVehicleDetail       = "vehicle_detail"
	OpVerifyToken         = "verify_token"
	OpExchangeCredentials = "exchange_credentials"
	OpCommand             = "command"
)

type request struct {
	RequestID string `json:"request_id"`
	Op        string `json:"op"`
	Token     string `json:"token,omitempty"`
	Command   string `json:"command,omitempty"`
	Args      []any  `json:"args,omitempty"`
}

type response struct {
	RequestID string `json:"request_id"`
	// Status follows HTTP semantics; zero is treated as 200.
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// decode keeps numbers as json.Number so large vehicle ids survive.
func decode(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	return dec.Decode(v)
}

func joinTopic(prefix, id string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + id
}
