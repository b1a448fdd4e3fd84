/*
Package iso7816 implements the ISO/IEC 7816-4 pieces the kiosk needs to talk
to a contact card: command and response APDUs, status word analysis, the T=0
follow-up procedures (61XX, 6CXX), SELECT by AID with optional FCI parsing,
and Channel, which serializes every driver call onto the single physical
reader.

# Exchanges

Communication is strictly half-duplex:
 1. The host sends a command APDU (header and optional body).
 2. The card answers with a response APDU (optional data and SW1 SW2).

# Usage

	ch := iso7816.NewChannel(transport, iso7816.WithTransmitTimeout(5*time.Second))

	err := ch.Do(ctx, func(s *iso7816.Session) error {
	    if _, err := s.ConnectFirst(); err != nil {
	        return err
	    }
	    trace, err := s.Send(iso7816.SelectByAID(0x00, aid))
	    if err != nil {
	        return err
	    }
	    log.Println(iso7816.DescribeSelect(trace))
	    return nil
	})
*/
package iso7816
