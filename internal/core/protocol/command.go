package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldDelimiter separates the fields of a command line.
const FieldDelimiter = ";"

// Verb selects the scene operation a command line invokes.
type Verb uint8

const (
	VerbUnknown Verb = iota
	VerbCreateObject
	VerbManipulateObject
	VerbRender
	VerbDeleteObject
	VerbSetMaterial
	VerbClear
	VerbSetBackgroundColor
)

var verbNames = map[Verb]string{
	VerbCreateObject:       "createObject",
	VerbManipulateObject:   "manipulateObject",
	VerbRender:             "render",
	VerbDeleteObject:       "deleteObject",
	VerbSetMaterial:        "setMaterial",
	VerbClear:              "clear",
	VerbSetBackgroundColor: "setBackgroundColor",
}

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return "unknown"
}

// ParseVerb matches s case-insensitively against the known verbs.
func ParseVerb(s string) (Verb, error) {
	s = strings.TrimSpace(s)
	for v, name := range verbNames {
		if strings.EqualFold(s, name) {
			return v, nil
		}
	}
	return VerbUnknown, fmt.Errorf("%w: %q", ErrUnknownVerb, s)
}

// Command is one decoded request line.
type Command struct {
	Verb       Verb
	Target     string
	Action     string
	Params     string
	Iterations int
}

// isMaterialParameter reports whether action takes a name;value pair, the
// only manipulation whose parameter string may itself contain the delimiter.
func isMaterialParameter(action string) bool {
	return strings.EqualFold(action, "setMaterialParameter") || strings.EqualFold(action, "materialParameter")
}

// Parse decodes a single command line. A trailing line terminator and the
// whitespace around every field are ignored.
func Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Command{}, fmt.Errorf("%w: empty line", ErrMalformedCommand)
	}
	fields := strings.Split(line, FieldDelimiter)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	verb, err := ParseVerb(fields[0])
	if err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	cmd := Command{Verb: verb}
	n := len(fields)

	malformed := func() (Command, error) {
		return Command{}, fmt.Errorf("%w: %s takes a different number of fields, got %d", ErrMalformedCommand, verb, n)
	}

	switch verb {
	case VerbCreateObject:
		if n < 3 || n > 4 {
			return malformed()
		}
		cmd.Target, cmd.Action = fields[1], fields[2]
		if n == 4 {
			cmd.Params = fields[3]
		}
	case VerbManipulateObject:
		if n < 3 || n > 5 {
			return malformed()
		}
		cmd.Target, cmd.Action = fields[1], fields[2]
		switch {
		case n == 5 && isMaterialParameter(cmd.Action):
			cmd.Params = fields[3] + FieldDelimiter + fields[4]
		case n == 5:
			return malformed()
		case n == 4:
			cmd.Params = fields[3]
		}
	case VerbRender:
		if n > 2 {
			return malformed()
		}
		cmd.Iterations = 1
		if n == 2 && fields[1] != "" {
			it, err := strconv.Atoi(fields[1])
			if err != nil || it < 1 {
				return Command{}, fmt.Errorf("%w: render iterations %q", ErrMalformedCommand, fields[1])
			}
			cmd.Iterations = it
		}
	case VerbDeleteObject:
		if n != 2 {
			return malformed()
		}
		cmd.Target = fields[1]
	case VerbSetMaterial:
		if n != 3 {
			return malformed()
		}
		cmd.Target, cmd.Params = fields[1], fields[2]
	case VerbSetBackgroundColor:
		if n != 2 {
			return malformed()
		}
		cmd.Params = fields[1]
	case VerbClear:
		if n != 1 {
			return malformed()
		}
	}
	return cmd, nil
}

// String encodes c back into its line form, without a terminator.
func (c Command) String() string {
	parts := []string{c.Verb.String()}
	switch c.Verb {
	case VerbCreateObject, VerbManipulateObject:
		parts = append(parts, c.Target, c.Action)
		if c.Params != "" {
			parts = append(parts, c.Params)
		}
	case VerbRender:
		if c.Iterations > 1 {
			parts = append(parts, strconv.Itoa(c.Iterations))
		}
	case VerbDeleteObject:
		parts = append(parts, c.Target)
	case VerbSetMaterial:
		parts = append(parts, c.Target, c.Params)
	case VerbSetBackgroundColor:
		parts = append(parts, c.Params)
	}
	return strings.Join(parts, FieldDelimiter)
}
