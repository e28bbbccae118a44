package ws

import "github.com/mmynk/zehem/internal/rpc"

// Frame types.
const (
	FrameHistory = "history"
	FrameMessage = "message"
	FrameBalance = "balance"
)

// Frame is one JSON text frame sent to a peer.
type Frame struct {
	Type string `json:"type"`

	// Messages is set on history frames.
	Messages []*rpc.Message `json:"messages,omitempty"`

	// Message is set on message frames.
	Message *rpc.Message `json:"message,omitempty"`

	// Coins is set on balance frames. Entry is the change that produced it,
	// absent on the first frame.
	Coins *int64           `json:"coins,omitempty"`
	Entry *rpc.LedgerEntry `json:"entry,omitempty"`
}

func balanceFrame(coins int64, entry *rpc.LedgerEntry) *Frame {
	return &Frame{Type: FrameBalance, Coins: &coins, Entry: entry}
}
