package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Response is a classified agent reply
type Response interface {
	Kind() string
	Outcome() Result
}

// Result is the agent's verdict on one request. On the wire it is either the
// literal "Success" or {"Failure": {"message": "..."}}.
type Result struct {
	Success bool
	Message string
}

const successMarker = "Success"

// UnmarshalJSON accepts both result shapes
func (r *Result) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := wire.Unmarshal(data, &s); err != nil {
			return err
		}
		r.Success = s == successMarker
		if !r.Success {
			r.Message = s
		}
		return nil
	}

	var obj struct {
		Failure *struct {
			Message string `json:"message"`
		} `json:"Failure"`
	}
	if err := wire.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Failure == nil {
		return fmt.Errorf("result is neither %q nor a Failure object", successMarker)
	}
	r.Success = false
	r.Message = obj.Failure.Message
	return nil
}

// MarshalJSON writes the wire shape back; used by test agents
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		return wire.Marshal(successMarker)
	}
	return wire.Marshal(map[string]map[string]string{
		KindFailure: {"message": r.Message},
	})
}

// Err converts a failed result into an error wrapping ErrAgentFailure
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrAgentFailure, r.Message)
}

// Success is the successful result
func Success() Result { return Result{Success: true} }

// Failure builds a failed result
func Failure(message string) Result { return Result{Message: message} }

// AckResponse answers requests that carry nothing beyond a result
type AckResponse struct {
	kind   string
	Result Result `json:"result"`
}

// VersionResponse answers CoreAgentVersion
type VersionResponse struct {
	Version string `json:"version"`
	Result  Result `json:"result"`
}

// FailureResponse is a bare top-level failure, sent when the agent could not
// even tell which request it was answering
type FailureResponse struct {
	Message string `json:"message"`
}

func (r *AckResponse) Kind() string        { return r.kind }
func (r *AckResponse) Outcome() Result     { return r.Result }
func (*VersionResponse) Kind() string      { return KindCoreAgentVersion }
func (r *VersionResponse) Outcome() Result { return r.Result }
func (*FailureResponse) Kind() string      { return KindFailure }
func (r *FailureResponse) Outcome() Result { return Failure(r.Message) }

// NewAck builds an acknowledgement of the given kind
func NewAck(kind string, result Result) *AckResponse {
	return &AckResponse{kind: kind, Result: result}
}

type responseDecoder func(raw []byte) (Response, error)

// responseTable is consulted in order; the first key present in the payload wins.
var responseTable = []struct {
	key    string
	decode responseDecoder
}{
	{KindCoreAgentVersion, decodeVersion},
	{KindRegister, decodeAck(KindRegister)},
	{KindStartRequest, decodeAck(KindStartRequest)},
	{KindFinishRequest, decodeAck(KindFinishRequest)},
	{KindTagRequest, decodeAck(KindTagRequest)},
	{KindStartSpan, decodeAck(KindStartSpan)},
	{KindStopSpan, decodeAck(KindStopSpan)},
	{KindTagSpan, decodeAck(KindTagSpan)},
	{KindApplicationEvent, decodeAck(KindApplicationEvent)},
	{KindFailure, decodeFailure},
}

// Classify parses one frame payload and dispatches it to a Response type.
func Classify(payload []byte) (Response, error) {
	var top map[string]json.RawMessage
	if err := wire.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	for _, entry := range responseTable {
		raw, ok := top[entry.key]
		if !ok {
			continue
		}
		resp, err := entry.decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, entry.key, err)
		}
		return resp, nil
	}

	keys := make([]string, 0, len(top))
	for k := range top {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return nil, fmt.Errorf("%w: keys [%s]", ErrUnrecognizedResponse, strings.Join(keys, ", "))
}

func decodeAck(kind string) responseDecoder {
	return func(raw []byte) (Response, error) {
		resp := &AckResponse{kind: kind}
		if err := wire.Unmarshal(raw, resp); err != nil {
			return nil, err
		}
		return resp, nil
	}
}

func decodeVersion(raw []byte) (Response, error) {
	resp := &VersionResponse{}
	if err := wire.Unmarshal(raw, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeFailure(raw []byte) (Response, error) {
	resp := &FailureResponse{}
	// tolerate {"Failure": "text"} as well as {"Failure": {"message": "text"}}
	if len(raw) > 0 && raw[0] == '"' {
		if err := wire.Unmarshal(raw, &resp.Message); err != nil {
			return nil, err
		}
		return resp, nil
	}
	if err := wire.Unmarshal(raw, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// EncodeResponse frames a response the way the agent does. The client never
// sends responses; fake agents in tests do.
func EncodeResponse(r Response) ([]byte, error) {
	var body any
	switch v := r.(type) {
	case *AckResponse:
		body = map[string]any{"result": v.Result}
	case *VersionResponse:
		body = map[string]any{"version": v.Version, "result": v.Result}
	case *FailureResponse:
		body = map[string]any{"message": v.Message}
	default:
		return nil, fmt.Errorf("cannot encode response %T", r)
	}
	return frame(map[string]any{r.Kind(): body})
}
