package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/lfzhong/excel-agent/internal/errors"
)

// DecodeEnvelope parses one raw transport frame into an Envelope.
//
// Behavior:
//   - Empty or whitespace-only frames fail with decode.empty_frame.
//   - Frames that are not a JSON object fail with decode.malformed.
//     The caller (session controller) logs and drops such frames rather
//     than crashing the session.
//   - A parseable envelope is returned even when Code != 0 or Data is nil;
//     routing upstream failures is the reducer's concern, not the decoder's.
func DecodeEnvelope(frame []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, errors.New(errors.CodeDecodeEmptyFrame, "frame contained no data")
	}

	// Reject non-object payloads up front. json.Unmarshal would accept
	// bare "null" into a struct pointer target, which is not a valid envelope.
	if trimmed[0] != '{' {
		return nil, errors.New(errors.CodeDecodeMalformed, "frame is not a JSON object")
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, errors.Wrap(errors.CodeDecodeMalformed, "failed to parse envelope", err)
	}

	return &env, nil
}

// EncodeRequest serializes an outbound request to a JSON frame for the
// duplex transport.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to encode request", err)
	}
	return data, nil
}
