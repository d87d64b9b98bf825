// Package decoder turns raw feed frames into model.Update values.
//
// A server frame is a JSON text envelope {"message": "<base64>"} whose payload
// is a protocol-buffer wire stream (the upstream PricingData message). Decoding
// is a pure function of its inputs: the same bytes always produce the same
// Update. The only time-dependent value is the capture timestamp passed in by
// the caller, which is substituted for LastTradeTime when the frame omits it.
//
// Unknown field numbers are skipped so that new upstream fields do not break
// existing clients.
package decoder
