package observerproto

import "deepstore.ai/internal/mediation/ledger"

// Version is the ledger feed protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeLedger    = "LEDGER"
)

// Client -> Server. First message on the feed connection, and can be re-sent to change areas.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Empty means every area.
	Areas []string `json:"areas,omitempty"`
}

// Server -> Client. One message per journal entry.
type LedgerMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Entry           ledger.Entry `json:"entry"`
}

// HTTP response for GET /v1/ledger/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	Seq             uint64      `json:"seq"`
	Areas           []AreaState `json:"areas"`
	Hooks           []HookState `json:"hooks"`
}

type AreaState struct {
	ID         string           `json:"id"`
	Containers []ContainerState `json:"containers"`
}

type ContainerState struct {
	ID             string      `json:"id"`
	Type           string      `json:"type"`
	Pos            [3]int      `json:"pos"`
	Live           bool        `json:"live"`
	AutoCollect    bool        `json:"auto_collect"`
	IncludeInTrade bool        `json:"include_in_trade"`
	Stock          []StockLine `json:"stock,omitempty"`
}

type StockLine struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

type HookState struct {
	Event   string `json:"event"`
	Enabled bool   `json:"enabled"`
}
