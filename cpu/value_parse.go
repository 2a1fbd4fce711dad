package cpu

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	numberPattern   = `-?0[xX][0-9a-fA-F_]+|-?0[bB][01_]+|-?[0-9_]+`
	labelPattern    = `\$[a-zA-Z0-9_]+`
	registerPattern = `(?i:[re]?[abcd]x|[abcd][lh]|[re]?(?:si|di|bp|sp)|r(?:[89]|1[0-5])|[cdefgs]s|[re]?ip)`
)

var (
	reNumber = regexp.MustCompile(`^(?:` + numberPattern + `)$`)
	reLabel  = regexp.MustCompile(`^` + labelPattern + `$`)
	reMemory = regexp.MustCompile(`^(?:((?i:[cdefgs]s)):)?\[(.+)\]$`)
)

const (
	grpRegister = `(` + registerPattern + `)`
	grpSign     = `([+-])`
	grpNumber   = `(` + numberPattern + `)`
	grpDisp     = `(` + numberPattern + `|` + labelPattern + `)`
)

// memoryGrammar is tried in order; the first match wins.
var memoryGrammar = [...]struct {
	mode Mode
	re   *regexp.Regexp
}{
	{MODE_INDIRECT, regexp.MustCompile(`^` + grpRegister + `$`)},
	{MODE_DISPLACEMENT, regexp.MustCompile(`^` + grpRegister + grpSign + grpDisp + `$`)},
	{MODE_INDEXED, regexp.MustCompile(`^` + grpRegister + `\+` + grpRegister + `$`)},
	{MODE_INDEXED_DISPLACEMENT, regexp.MustCompile(`^` + grpRegister + `\+` + grpRegister + grpSign + grpDisp + `$`)},
	{MODE_SCALED, regexp.MustCompile(`^(-)?` + grpRegister + `\*` + grpNumber + `$`)},
	{MODE_SCALED_DISPLACEMENT, regexp.MustCompile(`^(-)?` + grpRegister + `\*` + grpNumber + grpSign + grpDisp + `$`)},
	{MODE_INDEXED_SCALED, regexp.MustCompile(`^` + grpRegister + grpSign + grpRegister + `\*` + grpNumber + `$`)},
	{MODE_INDEXED_SCALED_DISPLACEMENT, regexp.MustCompile(`^` + grpRegister + grpSign + grpRegister + `\*` + grpNumber + grpSign + grpDisp + `$`)},
}

// ParseNumber reads a decimal, 0x hex or 0b binary literal, with optional
// sign and '_' separators. Negative values are returned in two's complement.
func ParseNumber(text string) (value uint64, err error) {
	text = strings.TrimSpace(text)
	if !reNumber.MatchString(text) {
		err = ErrParseNumber(text)
		return
	}

	digits := strings.ReplaceAll(text, "_", "")
	negative := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	base := 10
	if len(digits) > 2 {
		switch digits[:2] {
		case "0x", "0X":
			base = 16
			digits = digits[2:]
		case "0b", "0B":
			base = 2
			digits = digits[2:]
		}
	}

	value, err = strconv.ParseUint(digits, base, 64)
	if err != nil {
		err = ErrParseNumber(text)
		return
	}

	if negative {
		value = -value
	}
	return
}

// parseLiteral reads a number or a label reference. A '$' in front of a
// number is allowed and ignored.
func parseLiteral(text string) (literal uint64, label string, err error) {
	if strings.HasPrefix(text, "$") {
		name := text[1:]
		literal, err = ParseNumber(name)
		if err == nil {
			return
		}
		if !reLabel.MatchString(text) {
			err = ErrParseValue(text)
			return
		}
		err = nil
		label = name
		return
	}

	literal, err = ParseNumber(text)
	return
}

// ParseValue reads an operand: "[size] value".
//
// Without a size, the value is a register name, or '$' followed by a label
// or number for a qword immediate. With a size, the value is a number, a
// '$' label or number, or a bracketed memory expression.
func ParseValue(text string) (val Value, err error) {
	text = strings.TrimSpace(text)
	word, rest, _ := strings.Cut(text, " ")

	size, sized := ParseSize(strings.ToLower(word))
	if !sized {
		if strings.HasPrefix(text, "$") {
			val = Value{Type: VALUE_IMMEDIATE, Size: SIZE_QWORD}
			val.Literal, val.Label, err = parseLiteral(text)
			return
		}
		ref, ok := ParseRegister(text)
		if !ok {
			err = ErrParseValue(text)
			return
		}
		val = RegisterValue(ref)
		return
	}

	text = strings.TrimSpace(rest)
	if strings.HasPrefix(text, "$") || reNumber.MatchString(text) {
		val = Value{Type: VALUE_IMMEDIATE, Size: size}
		val.Literal, val.Label, err = parseLiteral(text)
		val.Literal &= size.Mask()
		return
	}

	return ParseMemory(text, size)
}

// ParseMemory reads a bracketed memory expression, with an optional segment
// prefix ("es:[rbx + 8]"). The segment defaults to ds.
func ParseMemory(text string, size Size) (val Value, err error) {
	compact := strings.Join(strings.Fields(text), "")
	match := reMemory.FindStringSubmatch(compact)
	if match == nil {
		err = ErrParseValue(text)
		return
	}

	val = Value{Type: VALUE_MEMORY, Size: size, Segment: SEG_DS}
	if len(match[1]) != 0 {
		val.Segment, _ = parseSegment(strings.ToLower(match[1]))
	}

	address := match[2]
	if strings.HasPrefix(address, "$") || reNumber.MatchString(address) {
		val.Mode = MODE_DIRECT
		val.Literal, val.Label, err = parseLiteral(address)
		if err != nil {
			err = ErrParseValue(text)
		}
		return
	}

	for _, grammar := range memoryGrammar {
		parts := grammar.re.FindStringSubmatch(address)
		if parts == nil {
			continue
		}
		val.Mode = grammar.mode
		err = val.fillMemory(parts[1:])
		if err != nil {
			err = ErrParseValue(text)
		}
		return
	}

	err = ErrParseValue(text)
	return
}

// fillMemory assigns the captures of a memory grammar to the value fields.
func (val *Value) fillMemory(parts []string) (err error) {
	next := func() (part string) {
		part, parts = parts[0], parts[1:]
		return
	}
	register := func() (ref RegisterRef, err error) {
		ref, ok := ParseRegister(next())
		if !ok {
			err = ErrRegisterInvalid
		}
		return
	}
	scale := func(negative bool) (err error) {
		text := next()
		value, err := ParseNumber(text)
		if err != nil {
			return
		}
		factor := int64(value)
		if negative {
			factor = -factor
		}
		if factor < math.MinInt16 || factor > math.MaxInt16 {
			err = ErrParseNumber(text)
			return
		}
		val.Scale = int16(factor)
		return
	}
	displacement := func() (err error) {
		negative := next() == "-"
		val.Literal, val.Label, err = parseLiteral(next())
		if err != nil {
			return
		}
		if negative {
			if len(val.Label) != 0 {
				val.LabelNegated = true
			} else {
				val.Literal = -val.Literal
			}
		}
		return
	}

	mode := val.Mode
	if mode == MODE_SCALED || mode == MODE_SCALED_DISPLACEMENT {
		negative := next() == "-"
		if val.Base, err = register(); err != nil {
			return
		}
		if err = scale(negative); err != nil {
			return
		}
	} else {
		if val.Base, err = register(); err != nil {
			return
		}
		if mode.hasIndex() {
			negative := false
			if mode.hasScale() {
				negative = next() == "-"
			}
			if val.Index, err = register(); err != nil {
				return
			}
			if mode.hasScale() {
				if err = scale(negative); err != nil {
					return
				}
			}
		}
	}

	if mode.hasDisplacement() {
		err = displacement()
	}
	return
}
