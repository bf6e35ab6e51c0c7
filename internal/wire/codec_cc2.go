package wire

import "encoding/json"

// cc2Codec implements the Centauri Carbon 2 MQTT dialect: flat
// {id,method,params} / {id,method,result} envelopes published to per-client
// topics (see internal/transport for topic routing), plus unsolicited
// {method:6000} events on the status topic.
type cc2Codec struct{}

func (cc2Codec) Dialect() Dialect { return DialectCC2MQTT }

type cc2Envelope struct {
	ID     string         `json:"id"`
	Method int            `json:"method,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

func (cc2Codec) EncodeCommand(env CommandEnvelope) ([]byte, error) {
	method := cc2MethodFor(env.Kind)
	wire := cc2Envelope{
		ID:     env.RequestID,
		Method: method,
		Params: correctCC2LightParams(method, env.Params),
	}
	return json.Marshal(wire)
}

// correctCC2LightParams applies the documented-vs-real firmware correction:
// light control takes {"power": 0|1}, not the documented {"brightness": N}.
func correctCC2LightParams(method int, params map[string]any) map[string]any {
	if method != cc2MethodSetLight {
		return params
	}
	if params == nil {
		return params
	}
	if brightness, ok := params["brightness"]; ok {
		fixed := make(map[string]any, len(params))
		for k, v := range params {
			if k == "brightness" {
				continue
			}
			fixed[k] = v
		}
		power := 0
		if f, ok := brightness.(float64); ok && f > 0 {
			power = 1
		} else if b, ok := brightness.(bool); ok && b {
			power = 1
		}
		fixed["power"] = power
		return fixed
	}
	return params
}

func (cc2Codec) DecodeFrame(data []byte) (*ResponseEnvelope, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var inner struct {
		ID     json.RawMessage `json:"id"`
		Method int             `json:"method"`
		Result map[string]any  `json:"result"`
		Error  *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &inner); err != nil {
		return nil, err
	}

	resp := &ResponseEnvelope{
		Method: inner.Method,
		Result: inner.Result,
	}

	if inner.Method != MethodStatusEvent {
		// id is normally a string; a numeric id is kept as its JSON text.
		var id string
		if err := json.Unmarshal(inner.ID, &id); err != nil {
			id = string(inner.ID)
		}
		resp.RequestID = id
	}
	if inner.Error != nil {
		resp.ErrorCode = inner.Error.Code
	}

	delete(raw, "id")
	delete(raw, "method")
	delete(raw, "result")
	delete(raw, "error")
	resp.Extra = raw
	return resp, nil
}
