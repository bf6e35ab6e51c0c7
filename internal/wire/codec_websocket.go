package wire

import "encoding/json"

// websocketCodec implements the WebSocket-SDCP dialect: a single envelope
// with `Id`/`Data.Cmd`/`Data.Data`/`Data.RequestID`, and status pushes that
// carry a `Topic` of the form "sdcp/status/<mainboardId>".
type websocketCodec struct{}

func (websocketCodec) Dialect() Dialect { return DialectWebSocketSDCP }

type wsCommandData struct {
	Cmd       int            `json:"Cmd"`
	Data      map[string]any `json:"Data"`
	RequestID string         `json:"RequestID"`
}

type wsEnvelope struct {
	Id   string         `json:"Id"`
	Data wsCommandData  `json:"Data"`
}

func (websocketCodec) EncodeCommand(env CommandEnvelope) ([]byte, error) {
	wire := wsEnvelope{
		Id: env.RequestID,
		Data: wsCommandData{
			Cmd:       methodFor(env.Kind),
			Data:      env.Params,
			RequestID: env.RequestID,
		},
	}
	return json.Marshal(wire)
}

// wsInboundFrame covers both request-response frames (Data.Data holds the
// result, Data.Cmd/Data.RequestID identify it) and topic-addressed status
// pushes (Topic is non-empty, Status holds the delta tree).
type wsInboundFrame struct {
	Id     string         `json:"Id"`
	Topic  string         `json:"Topic"`
	Data   map[string]any `json:"Data"`
	Status map[string]any `json:"Status"`
}

func (websocketCodec) DecodeFrame(data []byte) (*ResponseEnvelope, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var frame wsInboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}

	resp := &ResponseEnvelope{Extra: map[string]any{}}

	if frame.Topic != "" {
		// Unsolicited status push: treat the whole Status tree (or, absent
		// that, Data) as the delta to merge.
		resp.Method = MethodStatusEvent
		if len(frame.Status) > 0 {
			resp.Result = frame.Status
		} else {
			resp.Result = frame.Data
		}
		delete(raw, "Topic")
		delete(raw, "Status")
		delete(raw, "Data")
		resp.Extra = raw
		return resp, nil
	}

	// Request/response frame.
	var inner struct {
		Cmd       int            `json:"Cmd"`
		RequestID string         `json:"RequestID"`
		Data      map[string]any `json:"Data"`
		Code      int            `json:"Code"`
	}
	if nested, ok := raw["Data"].(map[string]any); ok {
		b, _ := json.Marshal(nested)
		_ = json.Unmarshal(b, &inner)
		if d, ok := nested["Data"].(map[string]any); ok {
			inner.Data = d
		}
	}

	resp.RequestID = inner.RequestID
	resp.Method = inner.Cmd
	resp.ErrorCode = inner.Code
	resp.Result = inner.Data
	delete(raw, "Data")
	resp.Extra = raw
	return resp, nil
}
