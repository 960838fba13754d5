package models

import (
	"encoding/json"
	"testing"
)

func TestLabel_Basics(t *testing.T) {
	if Healthy.String() != "Healthy" || Infected.String() != "Infected" {
		t.Errorf("Unexpected names: %s, %s", Healthy, Infected)
	}
	if Healthy.Other() != Infected || Infected.Other() != Healthy {
		t.Error("Expected Other to swap labels")
	}
	if Healthy.Index() != 0 || Infected.Index() != 1 {
		t.Error("Expected Healthy=0, Infected=1")
	}
	if Label(2).Valid() {
		t.Error("Expected Label(2) to be invalid")
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    Label
		wantErr bool
	}{
		{"Healthy", Healthy, false},
		{"Infected", Infected, false},
		{"healthy", 0, true},
		{"Invalid", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLabel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLabel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLabel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLabel_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Result Label `json:"result"`
	}{Infected})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"result":"Infected"}` {
		t.Errorf("Unexpected JSON %s", data)
	}

	var l Label
	if err := json.Unmarshal([]byte(`"Nope"`), &l); err == nil {
		t.Error("Expected unknown label to fail unmarshalling")
	}
	if _, err := json.Marshal(Label(5)); err == nil {
		t.Error("Expected invalid label to fail marshalling")
	}
}

func TestPrediction_Percentage(t *testing.T) {
	tests := []struct {
		confidence float32
		want       string
	}{
		{0.9, "90.00%"},
		{1, "100.00%"},
		{0.5, "50.00%"},
		{0.87654, "87.65%"},
	}
	for _, tt := range tests {
		p := Prediction{Confidence: tt.confidence}
		if got := p.Percentage(); got != tt.want {
			t.Errorf("Percentage(%v) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}
