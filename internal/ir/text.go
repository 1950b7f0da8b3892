package ir

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Format renders a program in its text form, one instruction per line.
func Format(p Program) (string, error) {
	var b strings.Builder
	for i, in := range p {
		line, err := FormatInstruction(in)
		if err != nil {
			return "", fmt.Errorf("instruction %d: %w", i, err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// FormatInstruction renders a single instruction. PUSH literals and NOP
// notes are JSON; names are written bare.
func FormatInstruction(in Instruction) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	parts := []string{in.Op.String()}
	info := in.Op.Info()
	for i, v := range in.Operands {
		switch info.Operands[i] {
		case OperandLiteral, OperandNote:
			lit, err := v.Literal()
			if err != nil {
				return "", err
			}
			parts = append(parts, lit)
		case OperandName:
			name, _ := v.Text()
			if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
				return "", fmt.Errorf("%s name %q contains whitespace", in.Op, name)
			}
			parts = append(parts, name)
		case OperandCount:
			n, _ := v.Num()
			parts = append(parts, strconv.Itoa(int(n)))
		}
	}
	return strings.Join(parts, " "), nil
}

func (in Instruction) String() string {
	s, err := FormatInstruction(in)
	if err != nil {
		return fmt.Sprintf("%s <invalid: %v>", in.Op, err)
	}
	return s
}

// IsComment reports whether a text line carries no instruction.
func IsComment(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "#")
}

// ParseProgram parses the text form. Blank lines and lines starting with
// '#' are skipped.
func ParseProgram(text string) (Program, error) {
	var p Program
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if IsComment(line) {
			continue
		}
		in, err := ParseInstruction(line)
		if err != nil {
			return nil, NewSyntaxError(lineNo, strings.TrimSpace(line), err.Error())
		}
		p = append(p, in)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	return p, nil
}

// ParseInstruction parses one instruction line.
func ParseInstruction(line string) (Instruction, error) {
	line = strings.TrimSpace(line)
	mnemonic, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		mnemonic, rest = line[:i], strings.TrimSpace(line[i:])
	}

	op, ok := LookupOpcode(mnemonic)
	if !ok {
		return Instruction{}, fmt.Errorf("unknown opcode %q", mnemonic)
	}
	in := Instruction{Op: op}
	info := op.Info()

	switch {
	case len(info.Operands) == 1 && (info.Operands[0] == OperandLiteral || info.Operands[0] == OperandNote):
		if rest == "" {
			break
		}
		v, err := ParseLiteral(rest)
		if err != nil {
			return Instruction{}, err
		}
		in.Operands = []Value{v}
	default:
		fields := strings.Fields(rest)
		if len(fields) > len(info.Operands) {
			return Instruction{}, fmt.Errorf("%s takes at most %d operand(s)", op, len(info.Operands))
		}
		for i, f := range fields {
			switch info.Operands[i] {
			case OperandCount:
				n, err := strconv.Atoi(f)
				if err != nil {
					return Instruction{}, fmt.Errorf("%s operand %d: %q is not an integer", op, i+1, f)
				}
				in.Operands = append(in.Operands, Number(float64(n)))
			default:
				in.Operands = append(in.Operands, String(f))
			}
		}
	}

	if err := in.Validate(); err != nil {
		return Instruction{}, err
	}
	return in, nil
}
