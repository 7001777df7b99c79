package jvm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

// Format controls how a class outline is rendered.
type Format struct {
	// Indent is the per-level indentation of members.
	Indent string
	// Header emits a leading comment naming the source file and class-file
	// version.
	Header bool
	// SortMembers orders fields and methods by name instead of class file
	// order.
	SortMembers bool
}

// DefaultFormat is four-space indentation with a header comment.
func DefaultFormat() Format {
	return Format{Indent: "    ", Header: true}
}

var errModule = errors.New("module descriptors have no source outline")

// Print renders cf as a declaration-level Java source outline. The context is
// checked before each member.
func Print(ctx context.Context, cf *ClassFile, f Format) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if cf.Access&accModule != 0 {
		return "", errModule
	}

	p := &printer{cf: cf, f: f}
	p.header()

	if simpleName(cf.ThisClass) == "package-info" {
		return p.sb.String(), nil
	}

	p.classDecl()

	fields, methods := cf.Fields, cf.Methods
	if f.SortMembers {
		fields = sortedMembers(fields)
		methods = sortedMembers(methods)
	}

	var constants, plain []Member
	for _, m := range fields {
		switch {
		case m.Access&accSynthetic != 0:
		case m.Access&accEnum != 0:
			constants = append(constants, m)
		default:
			plain = append(plain, m)
		}
	}

	wrote := false
	if len(constants) > 0 {
		for i, m := range constants {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			sep := ","
			if i == len(constants)-1 {
				sep = ";"
			}
			p.line(m.Name + sep)
		}
		wrote = true
	}

	if wrote && len(plain) > 0 {
		p.blank()
	}
	for _, m := range plain {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s, err := p.field(m)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", m.Name, err)
		}
		p.line(s)
		wrote = true
	}

	first := true
	for _, m := range methods {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if m.Access&(accSynthetic|accBridge) != 0 {
			continue
		}
		s, err := p.method(m)
		if err != nil {
			return "", fmt.Errorf("method %s: %w", m.Name, err)
		}
		if first && wrote {
			p.blank()
		}
		first = false
		p.line(s)
	}

	p.sb.WriteString("}\n")
	return p.sb.String(), nil
}

type printer struct {
	cf *ClassFile
	f  Format
	sb strings.Builder
}

func (p *printer) line(s string) {
	p.sb.WriteString(p.f.Indent)
	p.sb.WriteString(s)
	p.sb.WriteByte('\n')
}

func (p *printer) blank() {
	p.sb.WriteByte('\n')
}

func (p *printer) header() {
	cf := p.cf
	if p.f.Header {
		if cf.SourceFile != "" {
			fmt.Fprintf(&p.sb, "// Source file: %s\n", cf.SourceFile)
		}
		fmt.Fprintf(&p.sb, "// Class file version: %d.%d (%s)\n", cf.Major, cf.Minor, javaRelease(cf.Major))
		p.blank()
	}
	if pkg := packageName(cf.ThisClass); pkg != "" {
		fmt.Fprintf(&p.sb, "package %s;\n\n", pkg)
	}
}

func (p *printer) kind() string {
	acc := p.cf.Access
	switch {
	case acc&accAnnotation != 0:
		return "@interface"
	case acc&accInterface != 0:
		return "interface"
	case acc&accEnum != 0:
		return "enum"
	case p.cf.SuperClass == "java/lang/Record":
		return "record"
	default:
		return "class"
	}
}

func (p *printer) classDecl() {
	cf := p.cf
	kind := p.kind()

	var mods []string
	if cf.Access&accPublic != 0 {
		mods = append(mods, "public")
	}
	if kind == "class" && cf.Access&accAbstract != 0 {
		mods = append(mods, "abstract")
	}
	if kind == "class" && cf.Access&accFinal != 0 {
		mods = append(mods, "final")
	}
	mods = append(mods, kind, simpleName(cf.ThisClass))
	decl := strings.Join(mods, " ")

	if kind == "class" && cf.SuperClass != "" && cf.SuperClass != "java/lang/Object" {
		decl += " extends " + typeName(cf.SuperClass)
	}

	var ifaces []string
	for _, i := range cf.Interfaces {
		if kind == "@interface" && i == "java/lang/annotation/Annotation" {
			continue
		}
		ifaces = append(ifaces, typeName(i))
	}
	if len(ifaces) > 0 {
		kw := " implements "
		if kind == "interface" || kind == "@interface" {
			kw = " extends "
		}
		decl += kw + strings.Join(ifaces, ", ")
	}

	p.sb.WriteString(decl + " {\n")
}

func (p *printer) inInterface() bool {
	return p.cf.Access&accInterface != 0
}

func (p *printer) field(m Member) (string, error) {
	typ, err := FieldType(m.Descriptor)
	if err != nil {
		return "", err
	}

	// interface fields are implicitly public static final
	var mods []string
	if !p.inInterface() {
		mods = visibility(m.Access)
		if m.Access&accStatic != 0 {
			mods = append(mods, "static")
		}
		if m.Access&accFinal != 0 {
			mods = append(mods, "final")
		}
		if m.Access&accTransient != 0 {
			mods = append(mods, "transient")
		}
		if m.Access&accVolatile != 0 {
			mods = append(mods, "volatile")
		}
	}
	mods = append(mods, simplifyType(typ), m.Name)
	s := strings.Join(mods, " ")

	if m.constant != nil {
		lit, err := p.literal(m.Descriptor, m.constant)
		if err != nil {
			return "", err
		}
		s += " = " + lit
	}
	return s + ";", nil
}

func (p *printer) method(m Member) (string, error) {
	if m.Name == "<clinit>" {
		return "static { /* compiled code */ }", nil
	}

	params, ret, err := MethodType(m.Descriptor)
	if err != nil {
		return "", err
	}

	var mods []string
	abstract := m.Access&accAbstract != 0
	if p.inInterface() {
		if m.Access&accPrivate != 0 {
			mods = append(mods, "private")
		}
		if m.Access&accStatic != 0 {
			mods = append(mods, "static")
		} else if !abstract && m.Access&accPrivate == 0 {
			mods = append(mods, "default")
		}
	} else {
		mods = visibility(m.Access)
		if abstract {
			mods = append(mods, "abstract")
		}
		if m.Access&accStatic != 0 {
			mods = append(mods, "static")
		}
		if m.Access&accFinal != 0 {
			mods = append(mods, "final")
		}
		if m.Access&accSynchronized != 0 {
			mods = append(mods, "synchronized")
		}
		if m.Access&accNative != 0 {
			mods = append(mods, "native")
		}
		if m.Access&accStrict != 0 {
			mods = append(mods, "strictfp")
		}
	}

	if m.Name == "<init>" {
		mods = append(mods, simpleName(p.cf.ThisClass))
	} else {
		mods = append(mods, simplifyType(ret), m.Name)
	}

	args := make([]string, len(params))
	for i, t := range params {
		t = simplifyType(t)
		if i == len(params)-1 && m.Access&accVarargs != 0 && strings.HasSuffix(t, "[]") {
			t = strings.TrimSuffix(t, "[]") + "..."
		}
		args[i] = fmt.Sprintf("%s arg%d", t, i)
	}
	s := strings.Join(mods, " ") + "(" + strings.Join(args, ", ") + ")"

	if len(m.Exceptions) > 0 {
		ex := make([]string, len(m.Exceptions))
		for i, e := range m.Exceptions {
			ex[i] = typeName(e)
		}
		s += " throws " + strings.Join(ex, ", ")
	}

	if abstract || m.Access&accNative != 0 {
		return s + ";", nil
	}
	return s + " { /* compiled code */ }", nil
}

func (p *printer) literal(desc string, c *constant) (string, error) {
	switch desc {
	case "Z":
		if c.tag != tagInteger {
			break
		}
		return strconv.FormatBool(c.i != 0), nil
	case "C":
		if c.tag != tagInteger {
			break
		}
		return javaChar(rune(c.i)), nil
	case "B", "S", "I":
		if c.tag != tagInteger {
			break
		}
		return strconv.FormatInt(c.i, 10), nil
	case "J":
		if c.tag != tagLong {
			break
		}
		return strconv.FormatInt(c.i, 10) + "L", nil
	case "F":
		if c.tag != tagFloat {
			break
		}
		return javaFloat(c.f, 32, "Float") + "f", nil
	case "D":
		if c.tag != tagDouble {
			break
		}
		return javaFloat(c.f, 64, "Double"), nil
	case "Ljava/lang/String;":
		if c.tag != tagString {
			break
		}
		s, err := p.cf.utf8(c.a)
		if err != nil {
			return "", err
		}
		return javaString(s), nil
	}
	return "", fmt.Errorf("constant tag %d does not fit %s", c.tag, desc)
}

func visibility(acc uint16) []string {
	switch {
	case acc&accPublic != 0:
		return []string{"public"}
	case acc&accProtected != 0:
		return []string{"protected"}
	case acc&accPrivate != 0:
		return []string{"private"}
	default:
		return nil
	}
}

func sortedMembers(in []Member) []Member {
	out := append([]Member(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Descriptor < out[j].Descriptor
	})
	return out
}

func packageName(binary string) string {
	i := strings.LastIndexByte(binary, '/')
	if i < 0 {
		return ""
	}
	return JavaName(binary[:i])
}

// simpleName is the declared name of a class: the part after the package and,
// for named nested classes, after the last '$'.
func simpleName(binary string) string {
	name := binary[strings.LastIndexByte(binary, '/')+1:]
	if i := strings.LastIndexByte(name, '$'); i >= 0 && i+1 < len(name) {
		if rest := name[i+1:]; !unicode.IsDigit(rune(rest[0])) {
			return rest
		}
	}
	return name
}

func typeName(binary string) string {
	return simplifyType(JavaName(binary))
}

// simplifyType drops the java.lang prefix of types in that package.
func simplifyType(t string) string {
	const lang = "java.lang."
	if rest, ok := strings.CutPrefix(t, lang); ok && !strings.Contains(strings.TrimRight(rest, "[]."), ".") {
		return rest
	}
	return t
}

func javaRelease(major uint16) string {
	switch {
	case major >= 49:
		return fmt.Sprintf("Java %d", major-44)
	case major >= 45:
		return fmt.Sprintf("Java 1.%d", major-44)
	default:
		return "unknown"
	}
}

func javaFloat(v float64, bits int, box string) string {
	switch {
	case math.IsNaN(v):
		return box + ".NaN"
	case math.IsInf(v, 1):
		return box + ".POSITIVE_INFINITY"
	case math.IsInf(v, -1):
		return box + ".NEGATIVE_INFINITY"
	}
	s := strconv.FormatFloat(v, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func javaEscape(sb *strings.Builder, r rune, quote rune) {
	switch r {
	case '\b':
		sb.WriteString(`\b`)
	case '\t':
		sb.WriteString(`\t`)
	case '\n':
		sb.WriteString(`\n`)
	case '\f':
		sb.WriteString(`\f`)
	case '\r':
		sb.WriteString(`\r`)
	case '\\':
		sb.WriteString(`\\`)
	case quote:
		sb.WriteByte('\\')
		sb.WriteRune(r)
	default:
		if r < 0x20 || r == 0x7F || !unicode.IsPrint(r) {
			if r > 0xFFFF {
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(sb, `\u%04x\u%04x`, hi, lo)
				return
			}
			fmt.Fprintf(sb, `\u%04x`, r)
			return
		}
		sb.WriteRune(r)
	}
}

func javaString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		javaEscape(&sb, r, '"')
	}
	sb.WriteByte('"')
	return sb.String()
}

func javaChar(r rune) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	javaEscape(&sb, r, '\'')
	sb.WriteByte('\'')
	return sb.String()
}
