package device

import "fmt"

// modelInfo describes a known product.
type modelInfo struct {
	Model    string
	Family   Family
	Class    Class
	LEDCount int
	Wireless bool
}

// models maps USB product IDs to device descriptions.
//
// The table is the source of truth for family and class; devices not
// listed here are rejected during identification rather than probed.
var models = map[uint16]modelInfo{
	// Legacy keyboards
	0x1000: {Model: "Strafe K60", Family: FamilyLegacy, Class: ClassKeyboard, LEDCount: 105},
	0x1001: {Model: "Strafe K60 TKL", Family: FamilyLegacy, Class: ClassKeyboard, LEDCount: 87},

	// Legacy mice
	0x1010: {Model: "Pulse M30", Family: FamilyLegacy, Class: ClassMouse, LEDCount: 2},
	0x1011: {Model: "Pulse M35", Family: FamilyLegacy, Class: ClassMouse, LEDCount: 4},

	// Legacy mousepads
	0x1020: {Model: "Glow MP40", Family: FamilyLegacy, Class: ClassMousepad, LEDCount: 15},

	// Bragi keyboards
	0x2000: {Model: "Strafe K100", Family: FamilyBragi, Class: ClassKeyboard, LEDCount: 110},
	0x2001: {Model: "Strafe K100 Air", Family: FamilyBragi, Class: ClassKeyboard, LEDCount: 110, Wireless: true},

	// Bragi mice
	0x2010: {Model: "Pulse M75", Family: FamilyBragi, Class: ClassMouse, LEDCount: 5},
	0x2011: {Model: "Pulse M75 Wireless", Family: FamilyBragi, Class: ClassMouse, LEDCount: 5, Wireless: true},

	// Bragi headsets
	0x2020: {Model: "Void H70", Family: FamilyBragi, Class: ClassHeadset, LEDCount: 2, Wireless: true},

	// Dongles
	0x2100: {Model: "Slipstream Receiver", Family: FamilyBragi, Class: ClassDongle, LEDCount: 0},
}

// childModels maps the model identifiers dongles report for their
// paired children to product IDs in the models table.
var childModels = map[byte]uint16{
	0x01: 0x2001, // K100 Air
	0x02: 0x2011, // M75 Wireless
	0x03: 0x2020, // Void H70
}

// LookupModel returns the description for a product ID.
func LookupModel(productID uint16) (modelInfo, error) {
	info, ok := models[productID]
	if !ok {
		return modelInfo{}, fmt.Errorf("%w: product 0x%04X", ErrUnknownModel, productID)
	}
	return info, nil
}

// LookupChildModel resolves a dongle-reported child model byte.
func LookupChildModel(code byte) (modelInfo, error) {
	pid, ok := childModels[code]
	if !ok {
		return modelInfo{}, fmt.Errorf("%w: child model 0x%02X", ErrUnknownModel, code)
	}
	return models[pid], nil
}
