package protocol

import (
	"encoding/json"
	"testing"
)

func TestHeartbeatRequest_MarshalsExpectedFieldNames(t *testing.T) {
	created := "4242"

	req := HeartbeatRequest{
		CLIToken: "tok_abc",
		SystemInfo: &SystemInfo{
			OS: nil, CPU: nil, Load: nil, Memory: nil, Disks: nil,
		},
		ProcessOutput: []ProcessOutput{
			{PID: "4242", Temp: "hello\n", Cwd: "user@host:/home/user# ", IfCommandExecuted: 1, Status: StatusExecuting},
		},
		Callback: OutboundCallback{
			ProcessDeath:   []string{},
			ProcessCreated: &created,
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	for _, key := range []string{"cli_token", "system_info", "process_output", "callback"} {
		if _, ok := got[key]; !ok {
			t.Errorf("marshaled request missing field %q: %s", key, data)
		}
	}

	outputs, ok := got["process_output"].([]any)
	if !ok || len(outputs) != 1 {
		t.Fatalf("process_output = %v, want one entry", got["process_output"])
	}

	entry := outputs[0].(map[string]any)
	for _, key := range []string{"PID", "temp", "cwd", "if_command_executed", "status"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("process_output entry missing field %q: %v", key, entry)
		}
	}
}

func TestOutboundCallback_EmptyDeathMarshalsAsEmptyArray(t *testing.T) {
	cb := OutboundCallback{ProcessDeath: []string{}, ProcessCreated: nil}

	data, err := json.Marshal(cb)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"process_death":[],"process_created":null}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestHeartbeatResponse_UnmarshalsServerShape(t *testing.T) {
	raw := `{
		"statusCode": 1,
		"callback": {
			"command_executed_confirmed": ["4242"],
			"process_output_update_succeed": ["4242"]
		},
		"tasks": {
			"confirm_process_death": ["1001"],
			"if_require_new_process": 1,
			"command": [{"PID": "4242", "command": "ls -la"}],
			"kill_process": ["9999"]
		}
	}`

	var resp HeartbeatResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if resp.StatusCode != 1 {
		t.Errorf("StatusCode = %d, want 1", resp.StatusCode)
	}
	if len(resp.Callback.CommandExecutedConfirmed) != 1 || resp.Callback.CommandExecutedConfirmed[0] != "4242" {
		t.Errorf("CommandExecutedConfirmed = %v", resp.Callback.CommandExecutedConfirmed)
	}
	if resp.Tasks.IfRequireNewProcess != 1 {
		t.Errorf("IfRequireNewProcess = %d, want 1", resp.Tasks.IfRequireNewProcess)
	}
	if len(resp.Tasks.Command) != 1 || resp.Tasks.Command[0].PID != "4242" || resp.Tasks.Command[0].Command != "ls -la" {
		t.Errorf("Command = %v", resp.Tasks.Command)
	}
	if len(resp.Tasks.KillProcess) != 1 || resp.Tasks.KillProcess[0] != "9999" {
		t.Errorf("KillProcess = %v", resp.Tasks.KillProcess)
	}
}

func TestHeartbeatResponse_MissingFieldsAreZeroValue(t *testing.T) {
	var resp HeartbeatResponse
	if err := json.Unmarshal([]byte(`{"statusCode": 0}`), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if resp.Tasks.Command != nil {
		t.Errorf("Command = %v, want nil", resp.Tasks.Command)
	}
	if resp.Callback.CommandExecutedConfirmed != nil {
		t.Errorf("CommandExecutedConfirmed = %v, want nil", resp.Callback.CommandExecutedConfirmed)
	}
}
