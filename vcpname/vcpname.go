// Package vcpname maps VCP opcodes to human-readable descriptions. It is
// display glue only; nothing in the protocol engine consults it.
package vcpname

import "fmt"

var descriptions = map[byte]string{
	0x01: "Degauss",
	0x02: "New control value",
	0x04: "Restore factory defaults",
	0x05: "Restore brightness/contrast defaults",
	0x06: "Restore factory geometry defaults",
	0x08: "Restore factory color defaults",
	0x0c: "Save current settings",
	0x0e: "Clock",
	0x10: "Brightness",
	0x12: "Contrast",
	0x14: "Select color preset",
	0x16: "Video gain: red",
	0x18: "Video gain: green",
	0x1a: "Video gain: blue",
	0x1e: "Auto setup",
	0x20: "Horizontal position",
	0x30: "Vertical position",
	0x3e: "Clock phase",
	0x52: "Active control",
	0x60: "Input source",
	0x62: "Audio speaker volume",
	0x6c: "Video black level: red",
	0x6e: "Video black level: green",
	0x70: "Video black level: blue",
	0x8d: "Audio mute",
	0xac: "Horizontal frequency",
	0xae: "Vertical frequency",
	0xb2: "Flat panel sub-pixel layout",
	0xb6: "Display technology type",
	0xc0: "Display usage time",
	0xc6: "Application enable key",
	0xc8: "Display controller type",
	0xc9: "Display firmware level",
	0xca: "OSD state",
	0xcc: "OSD language",
	0xd6: "Power mode",
	0xda: "Scan mode",
	0xdc: "Display mode",
	0xdf: "VCP version",
	0xe3: "Capabilities reply",
	0xf3: "Capabilities request",
	0xf5: "Enable application report",
	0xf7: "Presence check",
}

// Describe returns a human-readable label for a VCP opcode, or a generic
// placeholder when the opcode is unknown.
func Describe(opcode byte) string {
	if s, ok := descriptions[opcode]; ok {
		return s
	}
	return fmt.Sprintf("Unknown control 0x%02x", opcode)
}
