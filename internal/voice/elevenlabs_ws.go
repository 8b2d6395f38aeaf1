package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Audio       string `json:"audio"`
	IsFinal     bool   `json:"isFinal"`
	IsFinalAlt  bool   `json:"is_final"`
	Error       string `json:"error"`
	MessageType string `json:"message_type"`
}

// synthesizeWS drives one stream-input session to completion and returns the
// concatenated clip. The session is closed before returning.
func (p *ElevenLabsProvider) synthesizeWS(ctx context.Context, text string, params Params) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(params.VoiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", params.ModelID)
	q.Set("output_format", p.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, res, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if res != nil && res.StatusCode >= 300 {
			return nil, &APIError{Provider: providerElevenLabs, StatusCode: res.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	frames := []map[string]any{
		{"text": " ", "voice_settings": voiceSettingsPayload(params)},
		{"text": strings.TrimSpace(text) + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, f := range frames {
		if err := conn.WriteJSON(f); err != nil {
			return nil, wsErr(ctx, "write tts frame", err)
		}
	}

	var out []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(out) > 0 {
				return out, nil
			}
			return nil, wsErr(ctx, "read tts frame", err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, &StreamError{Provider: providerElevenLabs, MessageType: msg.MessageType, Message: msg.Error}
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode audio chunk: %w", err)
			}
			out = append(out, chunk...)
		}
		if msg.IsFinal || msg.IsFinalAlt {
			return out, nil
		}
	}
}

func wsErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}
