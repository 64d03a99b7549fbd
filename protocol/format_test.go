package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMessageString(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Message{Type: MsgGetStatus}, "<Msg get_status: ->"},
		{
			Message{Type: MsgGetStatus, Payload: Status{Uptime: 5, TransmissionErrors: 1}},
			`<Msg get_status: {"uptime":5,"transmission_errors":1}>`,
		},
		{
			Message{Type: MsgGetVersion, Payload: FirmwareVersion()},
			`<Msg get_version: {"magic_identifier":1182471,"major":0,"minor":1}>`,
		},
		{Message{Type: MsgNop, Payload: Raw{1, 2}}, "<Msg nop: [1,2]>"},
	}

	for _, tt := range tests {
		if got := tt.msg.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestMessageJSON(t *testing.T) {
	msgs := []Message{
		{Type: MsgNop, Payload: Raw{0, 1, 255}},
		{Type: MsgSetJointsPositionSpeed, Payload: JointsPositionSpeed{
			Joints: [JointCount]JointMoveSpeed{{50, 100}, {-1, 2}, {3, -4}},
		}},
		{Type: MsgGetStatus, Payload: Status{Uptime: 1000, TransmissionErrors: 3}},
		{Type: MsgGetVersion, Payload: FirmwareVersion()},
	}

	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("Marshal(%v) failed: %v", msg, err)
		}
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", data, err)
		}
		if diff := cmp.Diff(msg, got); diff != "" {
			t.Errorf("JSON round trip mismatch for %s (-want +got):\n%s", data, diff)
		}
	}
}

func TestMessageJSONShape(t *testing.T) {
	data, err := json.Marshal(Message{Type: MsgGetStatus})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"msg_type":3,"status":{"uptime":0,"transmission_errors":0}}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var msg Message
	if err := json.Unmarshal([]byte(`{"msg_type":9}`), &msg); err == nil {
		t.Error("expected error for unknown msg_type")
	}
	if err := json.Unmarshal([]byte(`{"status":{}}`), &msg); err == nil {
		t.Error("expected error for missing msg_type")
	}
}

func TestUnmarshalPayloadPartialJoints(t *testing.T) {
	p, err := UnmarshalPayload(MsgSetJointsPositionSpeed, []byte(`{"joints": [{"position": 50, "speed": 100}]}`))
	if err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}

	want := JointsPositionSpeed{Joints: [JointCount]JointMoveSpeed{{Position: 50, Speed: 100}}}
	if diff := cmp.Diff(Payload(want), p); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	if _, err := UnmarshalPayload(MsgSetJointsPositionSpeed, []byte(`{"joints": [{"position": 40000}]}`)); err == nil {
		t.Error("expected error for out of range position")
	}
	if _, err := UnmarshalPayload(MsgNop, []byte(`[256]`)); err == nil {
		t.Error("expected error for out of range raw byte")
	}
}

func TestHexDump(t *testing.T) {
	if got := HexDump([]byte{0x01, 0xAB, 0x00}); got != "01 AB 00" {
		t.Errorf("HexDump = %q", got)
	}
	if got := HexDump(nil); got != "" {
		t.Errorf("HexDump(nil) = %q", got)
	}
}
