package event

import (
	"encoding/json"
	"fmt"
)

// StreamType identifies which in-session channel an event belongs to.
type StreamType string

const (
	StreamMain      StreamType = "main"
	StreamSidechain StreamType = "sidechain"
	StreamSubagent  StreamType = "subagent"
)

// StreamID identifies an in-session channel. Every event carries exactly
// one StreamID; ordering is defined within a stream by timestamp, between
// streams only by absolute timestamp.
type StreamID struct {
	Type StreamType
	// AgentID is set for sidechain streams.
	AgentID string
	// Name is set for subagent streams (e.g. "review").
	Name string
}

// MainStream returns the default main conversation stream.
func MainStream() StreamID {
	return StreamID{Type: StreamMain}
}

// SidechainStream returns a sidechain stream for a background agent.
func SidechainStream(agentID string) StreamID {
	return StreamID{Type: StreamSidechain, AgentID: agentID}
}

// SubagentStream returns a subagent stream by name.
func SubagentStream(name string) StreamID {
	return StreamID{Type: StreamSubagent, Name: name}
}

// String returns a stable textual form used for ordering tie-breaks and logs.
func (s StreamID) String() string {
	switch s.Type {
	case StreamSidechain:
		return "sidechain:" + s.AgentID
	case StreamSubagent:
		return "subagent:" + s.Name
	default:
		return "main"
	}
}

type streamWire struct {
	StreamType string          `json:"stream_type"`
	StreamData json.RawMessage `json:"stream_data,omitempty"`
}

type sidechainData struct {
	AgentID string `json:"agent_id"`
}

type subagentData struct {
	Name string `json:"name"`
}

// MarshalJSON encodes the stream as a tagged {stream_type, stream_data} pair.
func (s StreamID) MarshalJSON() ([]byte, error) {
	w := streamWire{StreamType: string(s.Type)}
	if w.StreamType == "" {
		w.StreamType = string(StreamMain)
	}
	switch s.Type {
	case StreamSidechain:
		data, err := json.Marshal(sidechainData{AgentID: s.AgentID})
		if err != nil {
			return nil, err
		}
		w.StreamData = data
	case StreamSubagent:
		data, err := json.Marshal(subagentData{Name: s.Name})
		if err != nil {
			return nil, err
		}
		w.StreamData = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged wire form. Unknown stream types are an
// error; extra fields inside stream_data are ignored.
func (s *StreamID) UnmarshalJSON(data []byte) error {
	var w streamWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch StreamType(w.StreamType) {
	case StreamMain, "":
		*s = MainStream()
	case StreamSidechain:
		var d sidechainData
		if len(w.StreamData) > 0 {
			if err := json.Unmarshal(w.StreamData, &d); err != nil {
				return err
			}
		}
		*s = SidechainStream(d.AgentID)
	case StreamSubagent:
		var d subagentData
		if len(w.StreamData) > 0 {
			if err := json.Unmarshal(w.StreamData, &d); err != nil {
				return err
			}
		}
		*s = SubagentStream(d.Name)
	default:
		return fmt.Errorf("unknown stream type: %q", w.StreamType)
	}
	return nil
}
