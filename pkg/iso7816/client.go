package iso7816

import (
	"fmt"
)

// Client resolves the two T=0 procedures that leak into the application
// layer:
//
//	61XX  send GET RESPONSE with Le = XX
//	6CXX  re-send the same command with Le = XX
//
// Send returns the full Trace so callers can inspect every exchange.

// maxChained bounds the number of follow-up exchanges for one command.
const maxChained = 16

// Transmitter sends raw command bytes and returns raw response bytes.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client sends commands over a Transmitter.
type Client struct {
	Card Transmitter
}

// NewClient creates a Client.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits cmd and follows 61XX and 6CXX answers.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	return c.send(cmd, nil)
}

func (c *Client) send(cmd *CommandAPDU, trace Trace) (Trace, error) {
	if len(trace) > maxChained {
		return trace, fmt.Errorf("%s: more than %d chained responses", cmd.Instruction.Raw, maxChained)
	}

	rawCmd, err := cmd.Bytes()
	if err != nil {
		return trace, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return trace, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return trace, err
	}

	trace = append(trace, Transaction{Command: cmd, Response: resp})

	switch resp.Status.SW1() {
	case 0x61:
		getResp := NewCommandAPDU(cmd.Class, MustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, leOf(resp.Status.SW2()))
		return c.send(getResp, trace)
	case 0x6C:
		retry := *cmd
		retry.Ne = leOf(resp.Status.SW2())
		return c.send(&retry, trace)
	}

	return trace, nil
}

// leOf maps an SW2 length hint to Ne. 0x00 stands for 256.
func leOf(sw2 byte) int {
	if sw2 == 0 {
		return MaxShortLe
	}
	return int(sw2)
}
