package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// String returns the textual form of a scalar type: i1, i8, f32, ...
func (t ScalarType) String() string {
	b := make([]byte, 0, 4)
	if t.Kind == ScalarFloat {
		b = append(b, 'f')
	} else {
		b = append(b, 'i')
	}
	b = strconv.AppendUint(b, uint64(t.Bits), 10)
	return string(b)
}

// String returns the textual form of a pointer type: ptr<global,64>.
func (t PointerType) String() string {
	return "ptr<" + t.Space.String() + "," + strconv.FormatUint(uint64(t.Bits), 10) + ">"
}

// String returns the textual form of a vector type: <4 x i32>.
func (t VectorType) String() string {
	return "<" + strconv.Itoa(t.Lanes) + " x " + t.Elem.String() + ">"
}

// ParseType parses the textual form produced by the String methods.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "<"):
		return parseVectorType(s)
	case strings.HasPrefix(s, "ptr<"):
		return parsePointerType(s)
	case strings.HasPrefix(s, "i"), strings.HasPrefix(s, "f"):
		return parseScalarType(s)
	}
	return nil, fmt.Errorf("invalid type %q", s)
}

func parseScalarType(s string) (Type, error) {
	bits, err := strconv.Atoi(s[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid scalar type %q", s)
	}
	if s[0] == 'f' {
		if bits != 16 && bits != 32 && bits != 64 {
			return nil, fmt.Errorf("invalid float width in %q", s)
		}
		return ScalarType{Kind: ScalarFloat, Bits: uint16(bits)}, nil
	}
	if bits <= 0 || bits > 64 {
		return nil, fmt.Errorf("invalid integer width in %q", s)
	}
	return Int(bits), nil
}

func parsePointerType(s string) (Type, error) {
	if !strings.HasSuffix(s, ">") {
		return nil, fmt.Errorf("invalid pointer type %q", s)
	}
	body := s[len("ptr<") : len(s)-1]
	spaceName, bitsText, found := strings.Cut(body, ",")
	if !found {
		return nil, fmt.Errorf("pointer type %q needs <space,bits>", s)
	}
	space, err := ParseAddressSpace(strings.TrimSpace(spaceName))
	if err != nil {
		return nil, err
	}
	bits, err := strconv.Atoi(strings.TrimSpace(bitsText))
	if err != nil || bits <= 0 || bits > 255 {
		return nil, fmt.Errorf("invalid pointer width in %q", s)
	}
	return Ptr(space, bits), nil
}

func parseVectorType(s string) (Type, error) {
	if !strings.HasSuffix(s, ">") {
		return nil, fmt.Errorf("invalid vector type %q", s)
	}
	body := s[1 : len(s)-1]
	lanesText, elemText, found := strings.Cut(body, " x ")
	if !found {
		return nil, fmt.Errorf("vector type %q needs <N x elem>", s)
	}
	lanes, err := strconv.Atoi(strings.TrimSpace(lanesText))
	if err != nil || lanes <= 0 {
		return nil, fmt.Errorf("invalid lane count in %q", s)
	}
	elem, err := ParseType(elemText)
	if err != nil {
		return nil, err
	}
	if _, ok := elem.(VectorType); ok {
		return nil, fmt.Errorf("nested vector in %q", s)
	}
	return Vec(lanes, elem), nil
}
