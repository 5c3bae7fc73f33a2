package ddcci

import (
	"fmt"
	"strconv"
	"strings"
)

// The capability descriptor is an ASCII sequence of nested parenthesized
// fields:
//
//	caps  := '(' field* ')'
//	field := key '(' value ')'
//
// Only depth-0 parens delimit a field's value, and only depth-0 spaces
// separate vcp entries, so both passes keep a paren-depth counter instead
// of splitting naively.

// parseCapabilities decodes the accumulated capability string and fills in
// the device kind, model and control table.
func (d *Device) parseCapabilities(caps string) error {
	if len(caps) < 2 || caps[0] != '(' {
		return fmt.Errorf("capability string does not start with '(': %q", caps)
	}
	depth := 0
	keyStart := 1
	valueStart := 0
	for i := 1; i < len(caps); i++ {
		switch caps[i] {
		case '(':
			if depth == 0 {
				valueStart = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				key := strings.TrimSpace(caps[keyStart : valueStart-1])
				if err := d.setCapabilityField(key, caps[valueStart:i]); err != nil {
					return err
				}
				keyStart = i + 1
			}
		}
	}
	return nil
}

func (d *Device) setCapabilityField(key, value string) error {
	d.logger.Debug("capability field", "key", key, "value", value)
	switch key {
	case "type":
		switch value {
		case "lcd":
			d.kind = KindLCD
		case "crt":
			d.kind = KindCRT
		}
	case "model":
		d.model = value
	case "vcp":
		return d.parseVCPList(value)
	}
	return nil
}

// parseVCPList decodes the vcp field's whitespace-separated entry list,
// each entry "HH" or "HH(V V V ...)", creating one Control per entry.
func (d *Device) parseVCPList(value string) error {
	depth := 0
	entryStart := 0
	flush := func(entry string) error {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil
		}
		ctrl, err := d.parseVCPEntry(entry)
		if err != nil {
			return err
		}
		d.controls = append(d.controls, ctrl)
		return nil
	}
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ' ':
			if depth == 0 {
				if err := flush(value[entryStart:i]); err != nil {
					return err
				}
				entryStart = i + 1
			}
		}
	}
	return flush(value[entryStart:])
}

func (d *Device) parseVCPEntry(entry string) (*Control, error) {
	valuesStr := ""
	if open := strings.IndexByte(entry, '('); open >= 0 {
		end := strings.LastIndexByte(entry, ')')
		if end < open {
			return nil, fmt.Errorf("unbalanced parens in vcp entry %q", entry)
		}
		valuesStr = entry[open+1 : end]
		entry = entry[:open]
	}
	opcode, err := strconv.ParseUint(entry, 16, 8)
	if err != nil {
		return nil, fmt.Errorf("bad vcp opcode %q: %w", entry, err)
	}
	ctrl := &Control{device: d, opcode: byte(opcode)}
	d.logger.Debug(fmt.Sprintf("add control 0x%02x", ctrl.opcode))
	for _, tok := range strings.Fields(valuesStr) {
		v, err := strconv.ParseUint(tok, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bad value %q for vcp opcode 0x%02x: %w", tok, opcode, err)
		}
		ctrl.values = append(ctrl.values, uint16(v))
	}
	return ctrl, nil
}

// capabilityString rebuilds a descriptor from the parsed state. Feeding the
// result back through parseCapabilities yields the same kind, model and
// control table, which the tests lean on.
func (d *Device) capabilityString() string {
	var b strings.Builder
	b.WriteByte('(')
	if d.kind != KindUnknown {
		fmt.Fprintf(&b, "type(%s)", d.kind)
	}
	if d.model != "" {
		fmt.Fprintf(&b, "model(%s)", d.model)
	}
	if len(d.controls) > 0 {
		b.WriteString("vcp(")
		for i, c := range d.controls {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%02x", c.opcode)
			if len(c.values) > 0 {
				b.WriteByte('(')
				for j, v := range c.values {
					if j > 0 {
						b.WriteByte(' ')
					}
					fmt.Fprintf(&b, "%d", v)
				}
				b.WriteByte(')')
			}
		}
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}
