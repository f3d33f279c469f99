package stream

import "testing"

func TestValidatorSequence(t *testing.T) {
	v := &Validator{}
	events := []string{
		`{"type":"text","seq":1,"text":"a"}`,
		`{"type":"tool_call","seq":2,"tool_call":{"id":"1","name":"add","arguments":{}}}`,
		`{"type":"final","seq":3,"final":{"usage":{}}}`,
	}
	for _, ev := range events {
		if err := v.Validate([]byte(ev)); err != nil {
			t.Fatalf("validate %s: %v", ev, err)
		}
	}
	if err := v.EnsureFinished(); err != nil {
		t.Fatalf("expected finished: %v", err)
	}
	if err := v.Validate([]byte(`{"type":"text","seq":4}`)); err == nil {
		t.Fatalf("expected error for event after final")
	}
}

func TestValidatorRejects(t *testing.T) {
	cases := map[string]string{
		"unknown type":  `{"type":"start","seq":1}`,
		"missing seq":   `{"type":"text"}`,
		"bad timestamp": `{"type":"text","seq":1,"ts":"yesterday"}`,
		"empty call":    `{"type":"tool_call","seq":1}`,
		"not json":      `{`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if err := ValidateRaw([]byte(payload)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	v := &Validator{}
	_ = v.Validate([]byte(`{"type":"text","seq":2}`))
	if err := v.Validate([]byte(`{"type":"text","seq":2}`)); err == nil {
		t.Fatalf("expected non-increasing seq error")
	}
	if err := (&Validator{}).EnsureFinished(); err == nil {
		t.Fatalf("expected missing final error")
	}
}

func TestValidatorErrorTerminates(t *testing.T) {
	v := &Validator{}
	if err := v.Validate([]byte(`{"type":"text","seq":1,"stream_id":"s1","text":"a"}`)); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := v.Validate([]byte(`{"type":"error","kind":"provider_error","error":"boom"}`)); err != nil {
		t.Fatalf("validate error event: %v", err)
	}
	if !v.Failed() || v.EnsureFinished() == nil {
		t.Fatalf("error event must end the stream unsuccessfully")
	}
	if err := v.Validate([]byte(`{"type":"final","seq":2,"final":{}}`)); err == nil {
		t.Fatalf("expected error for event after error")
	}
}

func TestValidatorStreamID(t *testing.T) {
	v := &Validator{}
	_ = v.Validate([]byte(`{"type":"text","seq":1,"stream_id":"a"}`))
	if err := v.Validate([]byte(`{"type":"text","seq":2,"stream_id":"b"}`)); err == nil {
		t.Fatalf("expected stream id change to fail")
	}
	if err := ValidateRaw([]byte(`{"type":"tool_call","seq":1,"tool_call":{"id":"1","name":"x","arguments":{}}}`)); err != nil {
		t.Fatalf("valid call rejected: %v", err)
	}
}
