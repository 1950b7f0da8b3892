package scenario

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rahul/kriya/internal/ir"
)

// Header is the first line of every generated scenario.
const Header = "# AUTO-GENERATED SCENARIO - do not edit by hand"

const (
	taskPrefix = "# TASK: "
	stepPrefix = "# STEP "
)

// Text renders the scenario's line-oriented form: the header, the task
// line, then per step a "# STEP n: description" comment followed by the
// step's instructions.
func (s *Scenario) Text() string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	b.WriteString(taskPrefix + escape(s.task))
	b.WriteByte('\n')

	next := 0
	emit := func(end int) {
		for ; next < end; next++ {
			b.WriteString(s.program[next].String())
			b.WriteByte('\n')
		}
	}
	for _, blk := range s.steps {
		emit(blk.Start)
		fmt.Fprintf(&b, "%s%d: %s\n", stepPrefix, blk.Number, escape(blk.Description))
	}
	emit(len(s.program))
	return b.String()
}

// Parse reads scenario text back, recovering the task, the ordered step
// blocks and the program.
func Parse(text string) (*Scenario, error) {
	s := &Scenario{}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, taskPrefix) || line == strings.TrimSpace(taskPrefix):
			s.task = unescape(strings.TrimPrefix(strings.TrimPrefix(line, strings.TrimSpace(taskPrefix)), " "))
		case strings.HasPrefix(line, stepPrefix):
			blk, err := parseStepLine(line)
			if err != nil {
				return nil, ir.NewSyntaxError(lineNo, line, err.Error())
			}
			if blk.Number != len(s.steps)+1 {
				return nil, ir.NewSyntaxError(lineNo, line, fmt.Sprintf("expected step %d", len(s.steps)+1))
			}
			blk.Start = len(s.program)
			s.steps = append(s.steps, blk)
		case ir.IsComment(line):
		default:
			in, err := ir.ParseInstruction(line)
			if err != nil {
				return nil, ir.NewSyntaxError(lineNo, line, err.Error())
			}
			s.program = append(s.program, in)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return s, nil
}

func parseStepLine(line string) (StepBlock, error) {
	rest := strings.TrimPrefix(line, stepPrefix)
	num, desc, ok := strings.Cut(rest, ":")
	if !ok {
		return StepBlock{}, fmt.Errorf("malformed step marker")
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return StepBlock{}, fmt.Errorf("invalid step number %q", num)
	}
	return StepBlock{Number: n, Description: unescape(strings.TrimPrefix(desc, " "))}, nil
}

// escape keeps a description on one line. Leading and trailing whitespace
// is escaped too, so trimming the line cannot change the description.
func escape(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case unicode.IsSpace(r) && (i == 0 || i == len(runes)-1):
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'u':
			if i+4 < len(s) {
				if code, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(code))
					i += 4
					continue
				}
			}
			b.WriteString(`\u`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
