package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Matsukatm/callcenter/internal/signaling"
)

// ARI event types consumed by the translator
const (
	ariStasisStart          = "StasisStart"
	ariStasisEnd            = "StasisEnd"
	ariChannelStateChange   = "ChannelStateChange"
	ariChannelEnteredBridge = "ChannelEnteredBridge"
	ariChannelHangupRequest = "ChannelHangupRequest"
	ariChannelDestroyed     = "ChannelDestroyed"
)

// dialedArg marks channels originated by the outbound dial helper
const dialedArg = "dialed"

const ariTimeLayout = "2006-01-02T15:04:05.000-0700"

type ariCaller struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type ariChannel struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	State  string    `json:"state"`
	Caller ariCaller `json:"caller"`
}

type ariBridge struct {
	ID string `json:"id"`
}

type ariEvent struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Args      []string    `json:"args"`
	Channel   *ariChannel `json:"channel"`
	Bridge    *ariBridge  `json:"bridge"`
	Cause     int         `json:"cause"`
}

// TranslateARI decodes one ARI websocket message. The boolean is false for
// message types the engine does not consume.
func TranslateARI(data []byte) (signaling.Event, bool, error) {
	var raw ariEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return signaling.Event{}, false, fmt.Errorf("decoding ari event: %w", err)
	}
	if raw.Channel == nil || raw.Channel.ID == "" {
		return signaling.Event{}, false, nil
	}

	evt := signaling.Event{
		ChannelID:   raw.Channel.ID,
		ChannelName: raw.Channel.Name,
		Timestamp:   parseARITime(raw.Timestamp),
	}

	switch raw.Type {
	case ariStasisStart:
		evt.Kind = signaling.KindChannelAppeared
		evt.CallerNumber = raw.Channel.Caller.Number
		evt.CallerName = raw.Channel.Caller.Name
		evt.Dialed = len(raw.Args) > 0 && raw.Args[0] == dialedArg
	case ariChannelStateChange:
		evt.Kind = signaling.KindStateChanged
		evt.State = raw.Channel.State
	case ariChannelEnteredBridge:
		if raw.Bridge == nil || raw.Bridge.ID == "" {
			return signaling.Event{}, false, nil
		}
		evt.Kind = signaling.KindEnteredBridge
		evt.BridgeID = raw.Bridge.ID
	case ariChannelHangupRequest:
		evt.Kind = signaling.KindHangupRequested
		if raw.Cause > 0 {
			evt.Cause = signaling.CauseName(raw.Cause)
		}
	case ariStasisEnd:
		evt.Kind = signaling.KindChannelTerminated
	case ariChannelDestroyed:
		evt.Kind = signaling.KindChannelTerminated
		evt.Cause = signaling.CauseName(raw.Cause)
	default:
		return signaling.Event{}, false, nil
	}

	return evt, true, nil
}

func parseARITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(ariTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
