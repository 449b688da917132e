package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Assemble turns line-oriented source text into a byte image. It runs
// two passes over the lines, the same shape as the teacher's
// preprocessLine/parseInputLine split: the first strips comments,
// expands .string directives into raw bytes and resolves labels to
// absolute offsets; the second emits the final instruction bytes now
// that every label is known.
func Assemble(source string) ([]byte, error) {
	lines := strings.Split(source, "\n")

	labels := map[string]int{}
	defines := map[string]int64{}
	type plan struct {
		mnemonic string
		operands []string
		widths   []int // reserved magnitude-byte width per operand, fixed across both passes
		raw      []byte // set for .string/.align directives; mnemonic is "" in that case
	}
	var plans []plan
	offset := 0

	// forwardRefWidth is the magnitude width reserved for any operand
	// whose value cannot yet be known in the sizing pass (a label not
	// yet seen). It must be wide enough for any offset this assembler
	// will ever produce.
	const forwardRefWidth = 4

	for lineNo, raw := range lines {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, ":") {
			name := strings.TrimSuffix(line, ":")
			if _, exists := labels[name]; exists {
				return nil, fmt.Errorf("line %d: duplicate label %q", lineNo+1, name)
			}
			labels[name] = offset
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case ".define":
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: .define expects NAME VALUE", lineNo+1)
			}
			v, err := parseImmediate(fields[2], defines)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			defines[fields[1]] = v
			continue

		case ".align":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: .align expects N", lineNo+1)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			padded := align(offset, n)
			plans = append(plans, plan{raw: make([]byte, padded-offset)})
			offset = padded
			continue

		case ".string":
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: .string expects LABEL \"text\"", lineNo+1)
			}
			text, err := parseQuoted(strings.Join(fields[2:], " "))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			if _, exists := labels[fields[1]]; exists {
				return nil, fmt.Errorf("line %d: duplicate label %q", lineNo+1, fields[1])
			}
			labels[fields[1]] = offset
			raw := []byte(text)
			plans = append(plans, plan{raw: raw})
			offset += len(raw)
			continue
		}

		mnemonic := strings.ToUpper(fields[0])
		op, ok := OpcodeFromName(mnemonic)
		if !ok {
			return nil, fmt.Errorf("line %d: unknown mnemonic %q", lineNo+1, fields[0])
		}
		operandText := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		var operands []string
		if operandText != "" {
			operands = splitOperands(operandText)
		}
		if len(operands) != op.Arity() {
			return nil, fmt.Errorf("line %d: %s expects %d operand(s), got %d", lineNo+1, mnemonic, op.Arity(), len(operands))
		}

		widths := make([]int, len(operands))
		offset += 1 // header byte
		for i, o := range operands {
			widths[i] = sizeOperand(o, labels, defines, forwardRefWidth)
			offset += 1 + widths[i] // descriptor byte + reserved magnitude bytes
		}
		plans = append(plans, plan{mnemonic: mnemonic, operands: operands, widths: widths})
	}

	// Second pass: encode for real now that every label is known,
	// padding each operand's magnitude to the width reserved for it
	// in the sizing pass above so offsets computed there stay valid.
	var out []byte
	for _, p := range plans {
		if p.mnemonic == "" {
			out = append(out, p.raw...)
			continue
		}
		op, _ := OpcodeFromName(p.mnemonic)
		encoded, err := encodeInstruction(op, p.operands, p.widths, labels, defines)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}

	return out, nil
}

// sizeOperand determines the magnitude-byte width an operand will
// occupy. Values that are already known (plain immediates, defines,
// already-seen labels) get their minimal width; anything that cannot
// yet be resolved (a forward label reference) reserves forwardWidth.
func sizeOperand(text string, labels map[string]int, defines map[string]int64, forwardWidth int) int {
	text = strings.TrimSpace(text)
	valueText := text

	switch {
	case strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		inner := text[1 : len(text)-1]
		if strings.HasPrefix(inner, "SP") {
			valueText = strings.TrimPrefix(inner, "SP")
		} else if strings.HasPrefix(inner, "R") {
			idx := strings.IndexAny(inner, "+-")
			if idx < 0 {
				return forwardWidth
			}
			valueText = inner[idx:]
		}
		valueText = strings.TrimPrefix(valueText, "+")
	case strings.HasPrefix(text, "R"):
		return 0
	}

	if valueText == "" {
		return 0
	}
	if off, ok := labels[valueText]; ok {
		return len(minimalBytes(int64(off)))
	}
	if _, defined := defines[valueText]; !defined && looksLikeIdentifier(valueText) {
		return forwardWidth
	}
	v, err := parseImmediate(valueText, defines)
	if err != nil {
		return forwardWidth
	}
	if v < 0 {
		v = -v
	}
	return len(minimalBytes(v))
}

// looksLikeIdentifier reports whether text is a bare name rather than
// a numeric literal, i.e. a label reference that may not be resolved
// yet in the sizing pass.
func looksLikeIdentifier(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c != '-' && (c < '0' || c > '9')
}

func align(offset, n int) int {
	if n <= 0 {
		return offset
	}
	if r := offset % n; r != 0 {
		return offset + (n - r)
	}
	return offset
}

func stripComment(line string) string {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		return line[:idx]
	}
	return line
}

func splitOperands(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseQuoted(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected a quoted string, got %q", s)
	}
	body := s[1 : len(s)-1]
	body = strings.ReplaceAll(body, `\n`, "\n")
	body = strings.ReplaceAll(body, `\0`, "\x00")
	body = strings.ReplaceAll(body, `\\`, `\`)
	return body, nil
}

func parseImmediate(tok string, defines map[string]int64) (int64, error) {
	if v, ok := defines[tok]; ok {
		return v, nil
	}
	neg := false
	if strings.HasPrefix(tok, "-") {
		neg = true
		tok = tok[1:]
	}
	var v uint64
	var err error
	switch {
	case strings.HasPrefix(tok, "0x"):
		v, err = strconv.ParseUint(tok[2:], 16, 64)
	case strings.HasPrefix(tok, "0b"):
		v, err = strconv.ParseUint(tok[2:], 2, 64)
	case strings.HasSuffix(tok, "w"):
		v, err = strconv.ParseUint(tok[:len(tok)-1], 10, 64)
		v *= 8
	default:
		v, err = strconv.ParseUint(tok, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid immediate %q: %w", tok, err)
	}
	if neg {
		return -int64(v), nil
	}
	return int64(v), nil
}

// encodeInstruction renders one instruction's final bytes. label and
// define lookups happen here so forward references resolve.
func encodeInstruction(op Opcode, operandText []string, widths []int, labels map[string]int, defines map[string]int64) ([]byte, error) {
	cc := byte(op.Arity())
	header := cc<<6 | wireByte[op]
	out := []byte{header}

	for i, text := range operandText {
		desc, magnitude, err := encodeOperand(text, widths[i], labels, defines)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, desc)
		out = append(out, magnitude...)
	}
	return out, nil
}

func encodeOperand(text string, width int, labels map[string]int, defines map[string]int64) (byte, []byte, error) {
	text = strings.TrimSpace(text)

	var mode AddressMode
	var reg int
	var valueText string

	switch {
	case strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		inner := text[1 : len(text)-1]
		if strings.HasPrefix(inner, "SP") {
			mode = ModeStack
			valueText = strings.TrimPrefix(inner, "SP")
		} else if strings.HasPrefix(inner, "R") {
			mode = ModeHeap
			idx := strings.IndexAny(inner, "+-")
			if idx < 0 {
				return 0, nil, fmt.Errorf("heap operand %q missing offset", text)
			}
			r, err := strconv.Atoi(inner[1:idx])
			if err != nil {
				return 0, nil, fmt.Errorf("invalid register in %q: %w", text, err)
			}
			reg = r
			valueText = inner[idx:]
		} else {
			return 0, nil, fmt.Errorf("unrecognized indirect operand %q", text)
		}
		valueText = strings.TrimPrefix(valueText, "+")

	case strings.HasPrefix(text, "R"):
		mode = ModeRegister
		r, err := strconv.Atoi(text[1:])
		if err != nil {
			return 0, nil, fmt.Errorf("invalid register %q: %w", text, err)
		}
		reg = r
		valueText = "0"

	default:
		mode = ModeImmediate
		valueText = text
	}

	var value int64
	if off, ok := labels[valueText]; ok {
		value = int64(off)
	} else if valueText != "" {
		v, err := parseImmediate(valueText, defines)
		if err != nil {
			return 0, nil, err
		}
		value = v
	}

	var sign byte
	magnitude := value
	if value < 0 {
		sign = 1
		magnitude = -value
	}
	magBytes := padBytes(minimalBytes(magnitude), width)

	desc := byte(mode)<<6 | byte(reg&0b11)<<4 | sign<<3 | byte(len(magBytes))
	return desc, magBytes, nil
}

// padBytes widens a little-endian magnitude to exactly width bytes,
// the reserved size computed during the sizing pass, so the second
// pass never shifts any byte offset the first pass already committed
// label positions to.
func padBytes(b []byte, width int) []byte {
	if len(b) >= width {
		return b
	}
	out := make([]byte, width)
	copy(out, b)
	return out
}

func minimalBytes(v int64) []byte {
	u := uint64(v)
	if u == 0 {
		return nil
	}
	var b []byte
	for u > 0 {
		b = append(b, byte(u))
		u >>= 8
	}
	return b
}
