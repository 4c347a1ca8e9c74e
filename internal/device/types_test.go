package device

import (
	"errors"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDiscovering, StatusIdentifying, true},
		{StatusDiscovering, StatusDisconnected, true},
		{StatusDiscovering, StatusActive, false},
		{StatusIdentifying, StatusActive, true},
		{StatusIdentifying, StatusUpdating, false},
		{StatusActive, StatusUpdating, true},
		{StatusActive, StatusDisconnected, true},
		{StatusActive, StatusIdentifying, false},
		{StatusUpdating, StatusActive, true},
		{StatusUpdating, StatusDisconnected, true},
		{StatusDisconnected, StatusActive, false},
		{StatusDisconnected, StatusDiscovering, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestDPIStagesValidate(t *testing.T) {
	tests := []struct {
		name   string
		stages DPIStages
		ok     bool
	}{
		{"single stage", DPIStages{800}, true},
		{"five stages", DPIStages{400, 800, 1600, 3200, 6400}, true},
		{"empty", DPIStages{}, false},
		{"six stages", DPIStages{400, 400, 400, 400, 400, 400}, false},
		{"too low", DPIStages{50}, false},
		{"too high", DPIStages{30000}, false},
		{"bounds", DPIStages{100, 26000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stages.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestDeviceDeepCopy(t *testing.T) {
	orig := &Device{
		ID:       "abc",
		Node:     3,
		Children: []string{"c1", "c2"},
	}

	cp := orig.DeepCopy()
	cp.Children[0] = "mutated"
	cp.Node = 9

	if orig.Children[0] != "c1" {
		t.Error("copy shares children slice with original")
	}
	if orig.Node != 3 {
		t.Error("copy shares scalar state with original")
	}
}

func TestNodeName(t *testing.T) {
	d := Device{Node: 7}
	if got := d.NodeName(); got != "lumen7" {
		t.Errorf("NodeName() = %s, want lumen7", got)
	}
}

func TestLookupModel(t *testing.T) {
	info, err := LookupModel(0x2010)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if info.Family != FamilyBragi || info.Class != ClassMouse {
		t.Errorf("info = %+v", info)
	}

	if _, err := LookupModel(0xBEEF); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("error = %v, want ErrUnknownModel", err)
	}
}

func TestLookupChildModel(t *testing.T) {
	info, err := LookupChildModel(0x03)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if info.Class != ClassHeadset {
		t.Errorf("class = %s, want headset", info.Class)
	}

	if _, err := LookupChildModel(0x7F); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("error = %v, want ErrUnknownModel", err)
	}
}
