package domain

import (
	"errors"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType EventType
		check    func(t *testing.T, ev Event)
	}{
		{
			name:     "error event",
			input:    `{"type":"error","message":"boom","stack":"at x","lineno":3}`,
			wantType: EventError,
			check: func(t *testing.T, ev Event) {
				e := ev.(ErrorEvent)
				if e.Message != "boom" || e.Lineno != 3 {
					t.Errorf("unexpected error event: %+v", e)
				}
			},
		},
		{
			name:     "click event",
			input:    `{"type":"click","bizId":"b1","x":10,"y":20,"target":{"tagName":"BUTTON","id":"save"},"page":{"url":"http://a/b","path":"/b","title":"B"}}`,
			wantType: EventClick,
			check: func(t *testing.T, ev Event) {
				e := ev.(ClickEvent)
				if e.BizID != "b1" || e.X != 10 || e.Y != 20 || e.Target.TagName != "BUTTON" || e.Page.Path != "/b" {
					t.Errorf("unexpected click event: %+v", e)
				}
			},
		},
		{
			name:     "fetch keeps its kind",
			input:    `{"type":"fetch","url":"/api","status":500,"duration":12.5}`,
			wantType: EventFetch,
			check: func(t *testing.T, ev Event) {
				e := ev.(APIEvent)
				if e.Status != 500 || e.Duration != 12.5 {
					t.Errorf("unexpected api event: %+v", e)
				}
			},
		},
		{
			name:     "custom keeps extra attributes",
			input:    `{"type":"custom","name":"checkout","step":2,"customData":{"plan":"pro"}}`,
			wantType: EventCustom,
			check: func(t *testing.T, ev Event) {
				e := ev.(CustomEvent)
				if e.Name != "checkout" {
					t.Errorf("name = %q", e.Name)
				}
				if e.Extra["step"] != float64(2) {
					t.Errorf("extra step = %v", e.Extra["step"])
				}
				if e.CustomData["plan"] != "pro" {
					t.Errorf("customData = %v", e.CustomData)
				}
			},
		},
		{
			name:     "unknown type becomes custom with original tag",
			input:    `{"type":"resource","name":"img"}`,
			wantType: EventType("resource"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if ev.Type() != tt.wantType {
				t.Fatalf("Type() = %q, want %q", ev.Type(), tt.wantType)
			}
			if got := ev.Fields()["type"]; got != string(tt.wantType) {
				t.Errorf("Fields()[type] = %v", got)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestDecodeEventErrors(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"message":"x"}`)); !errors.Is(err, ErrMissingType) {
		t.Errorf("expected ErrMissingType, got %v", err)
	}
	if _, err := DecodeEvent([]byte(`{"type":`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
