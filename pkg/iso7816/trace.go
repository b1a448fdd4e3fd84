package iso7816

// A Trace records every physical exchange made to complete one logical
// command. A SELECT answered with 61XX produces two entries: the SELECT
// itself and the GET RESPONSE that fetched the data.

// Transaction is one command and its response.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess is false when the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is the ordered list of transactions of one logical command.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess evaluates the final transaction only.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Response returns the final response, or nil for an empty trace.
func (t Trace) Response() *ResponseAPDU {
	last := t.Last()
	if last == nil {
		return nil
	}
	return last.Response
}

// Status returns the final status word, or 0 for an empty trace.
func (t Trace) Status() StatusWord {
	if r := t.Response(); r != nil {
		return r.Status
	}
	return 0
}
