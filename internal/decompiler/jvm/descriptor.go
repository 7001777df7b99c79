package jvm

import (
	"fmt"
	"strings"
)

var baseTypes = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// JavaName converts a binary class name (java/lang/String) to its source form.
func JavaName(binary string) string {
	return strings.ReplaceAll(binary, "/", ".")
}

// parseFieldType reads one field type starting at desc[i] and returns its
// Java spelling and the index just past it.
func parseFieldType(desc string, i int) (string, int, error) {
	dims := 0
	for i < len(desc) && desc[i] == '[' {
		dims++
		i++
	}
	if i >= len(desc) {
		return "", 0, fmt.Errorf("descriptor %q: unexpected end", desc)
	}

	var typ string
	switch c := desc[i]; c {
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 2 {
			return "", 0, fmt.Errorf("descriptor %q: unterminated class type", desc)
		}
		typ = JavaName(desc[i+1 : i+end])
		i += end + 1
	default:
		base, ok := baseTypes[c]
		if !ok || (c == 'V' && dims > 0) {
			return "", 0, fmt.Errorf("descriptor %q: bad type %q", desc, c)
		}
		typ = base
		i++
	}
	return typ + strings.Repeat("[]", dims), i, nil
}

// FieldType converts a field descriptor to a Java type.
func FieldType(desc string) (string, error) {
	typ, end, err := parseFieldType(desc, 0)
	if err != nil {
		return "", err
	}
	if end != len(desc) || typ == "void" {
		return "", fmt.Errorf("descriptor %q: not a field type", desc)
	}
	return typ, nil
}

// MethodType converts a method descriptor to parameter and return types.
func MethodType(desc string) ([]string, string, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, "", fmt.Errorf("descriptor %q: not a method type", desc)
	}

	var params []string
	i := 1
	for i < len(desc) && desc[i] != ')' {
		typ, next, err := parseFieldType(desc, i)
		if err != nil {
			return nil, "", err
		}
		if typ == "void" {
			return nil, "", fmt.Errorf("descriptor %q: void parameter", desc)
		}
		params = append(params, typ)
		i = next
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("descriptor %q: missing ')'", desc)
	}

	ret, end, err := parseFieldType(desc, i+1)
	if err != nil {
		return nil, "", err
	}
	if end != len(desc) {
		return nil, "", fmt.Errorf("descriptor %q: trailing data", desc)
	}
	return params, ret, nil
}
