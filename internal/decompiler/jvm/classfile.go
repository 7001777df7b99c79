package jvm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

const classMagic = 0xCAFEBABE

var (
	ErrNotClassFile = errors.New("not a class file")
	ErrTruncated    = errors.New("truncated class file")
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Access flags shared by classes, fields and methods.
const (
	accPublic       = 0x0001
	accPrivate      = 0x0002
	accProtected    = 0x0004
	accStatic       = 0x0008
	accFinal        = 0x0010
	accSynchronized = 0x0020
	accVolatile     = 0x0040
	accBridge       = 0x0040
	accTransient    = 0x0080
	accVarargs      = 0x0080
	accNative       = 0x0100
	accInterface    = 0x0200
	accAbstract     = 0x0400
	accStrict       = 0x0800
	accSynthetic    = 0x1000
	accAnnotation   = 0x2000
	accEnum         = 0x4000
	accModule       = 0x8000
)

type constant struct {
	tag  uint8
	str  string // Utf8
	a, b uint16 // index operands
	i    int64  // Integer, Long
	f    float64
}

// Member is a field or a method.
type Member struct {
	Access     uint16
	Name       string
	Descriptor string

	// Constant is the raw ConstantValue pool entry of a field, or nil.
	constant *constant
	// Exceptions lists the binary names a method declares to throw.
	Exceptions []string
}

// ClassFile is the declaration-level content of a .class file.
type ClassFile struct {
	Minor, Major uint16
	Access       uint16
	ThisClass    string
	SuperClass   string
	Interfaces   []string
	Fields       []Member
	Methods      []Member
	SourceFile   string

	pool []constant
}

type reader struct {
	b   []byte
	off int
}

func (r *reader) need(n int) error {
	if r.off+n > len(r.b) {
		return ErrTruncated
	}
	return nil
}

func (r *reader) u1() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *reader) u2() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u8() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v, nil
}

// ParseClassFile decodes the declaration-level parts of a class file. Code
// attributes are skipped.
func ParseClassFile(b []byte) (*ClassFile, error) {
	r := &reader{b: b}

	magic, err := r.u4()
	if err != nil || magic != classMagic {
		return nil, ErrNotClassFile
	}

	cf := &ClassFile{}
	if cf.Minor, err = r.u2(); err != nil {
		return nil, err
	}
	if cf.Major, err = r.u2(); err != nil {
		return nil, err
	}
	if err := cf.readPool(r); err != nil {
		return nil, err
	}

	if cf.Access, err = r.u2(); err != nil {
		return nil, err
	}
	this, err := r.u2()
	if err != nil {
		return nil, err
	}
	if cf.ThisClass, err = cf.className(this); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	super, err := r.u2()
	if err != nil {
		return nil, err
	}
	if super != 0 {
		if cf.SuperClass, err = cf.className(super); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	n, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(n); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, err := cf.className(idx)
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}

	if cf.Fields, err = cf.readMembers(r); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if cf.Methods, err = cf.readMembers(r); err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}

	err = cf.readAttributes(r, func(name string, info *reader) error {
		if name != "SourceFile" {
			return nil
		}
		idx, err := info.u2()
		if err != nil {
			return err
		}
		cf.SourceFile, err = cf.utf8(idx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	return cf, nil
}

func (cf *ClassFile) readPool(r *reader) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: empty constant pool", ErrNotClassFile)
	}
	cf.pool = make([]constant, count)

	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return err
		}
		c := constant{tag: tag}
		switch tag {
		case tagUtf8:
			n, err := r.u2()
			if err != nil {
				return err
			}
			raw, err := r.bytes(int(n))
			if err != nil {
				return err
			}
			c.str = decodeModifiedUTF8(raw)
		case tagInteger:
			v, err := r.u4()
			if err != nil {
				return err
			}
			c.i = int64(int32(v))
		case tagFloat:
			v, err := r.u4()
			if err != nil {
				return err
			}
			c.f = float64(math.Float32frombits(v))
		case tagLong, tagDouble:
			v, err := r.u8()
			if err != nil {
				return err
			}
			if tag == tagLong {
				c.i = int64(v)
			} else {
				c.f = math.Float64frombits(v)
			}
			cf.pool[i] = c
			// eight-byte constants take two slots
			i++
			continue
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			if c.a, err = r.u2(); err != nil {
				return err
			}
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType,
			tagDynamic, tagInvokeDynamic:
			if c.a, err = r.u2(); err != nil {
				return err
			}
			if c.b, err = r.u2(); err != nil {
				return err
			}
		case tagMethodHandle:
			kind, err := r.u1()
			if err != nil {
				return err
			}
			c.a = uint16(kind)
			if c.b, err = r.u2(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("constant pool entry %d: unknown tag %d", i, tag)
		}
		cf.pool[i] = c
	}
	return nil
}

func (cf *ClassFile) readMembers(r *reader) ([]Member, error) {
	n, err := r.u2()
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, n)
	for i := 0; i < int(n); i++ {
		var m Member
		if m.Access, err = r.u2(); err != nil {
			return nil, err
		}
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		if m.Name, err = cf.utf8(nameIdx); err != nil {
			return nil, err
		}
		if m.Descriptor, err = cf.utf8(descIdx); err != nil {
			return nil, err
		}

		err = cf.readAttributes(r, func(name string, info *reader) error {
			switch name {
			case "ConstantValue":
				idx, err := info.u2()
				if err != nil {
					return err
				}
				c, err := cf.entry(idx)
				if err != nil {
					return err
				}
				m.constant = c
			case "Exceptions":
				count, err := info.u2()
				if err != nil {
					return err
				}
				for j := 0; j < int(count); j++ {
					idx, err := info.u2()
					if err != nil {
						return err
					}
					ex, err := cf.className(idx)
					if err != nil {
						return err
					}
					m.Exceptions = append(m.Exceptions, ex)
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name, err)
		}
		members = append(members, m)
	}
	return members, nil
}

func (cf *ClassFile) readAttributes(r *reader, fn func(name string, info *reader) error) error {
	n, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return err
		}
		length, err := r.u4()
		if err != nil {
			return err
		}
		if uint64(length) > uint64(len(r.b)-r.off) {
			return ErrTruncated
		}
		info, err := r.bytes(int(length))
		if err != nil {
			return err
		}
		name, err := cf.utf8(nameIdx)
		if err != nil {
			return err
		}
		if err := fn(name, &reader{b: info}); err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
	}
	return nil
}

func (cf *ClassFile) entry(idx uint16) (*constant, error) {
	if idx == 0 || int(idx) >= len(cf.pool) || cf.pool[idx].tag == 0 {
		return nil, fmt.Errorf("invalid constant pool index %d", idx)
	}
	return &cf.pool[idx], nil
}

func (cf *ClassFile) utf8(idx uint16) (string, error) {
	c, err := cf.entry(idx)
	if err != nil {
		return "", err
	}
	if c.tag != tagUtf8 {
		return "", fmt.Errorf("constant %d is not Utf8", idx)
	}
	return c.str, nil
}

func (cf *ClassFile) className(idx uint16) (string, error) {
	c, err := cf.entry(idx)
	if err != nil {
		return "", err
	}
	if c.tag != tagClass {
		return "", fmt.Errorf("constant %d is not a Class", idx)
	}
	return cf.utf8(c.a)
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8. Supplementary
// characters arrive as surrogate pairs, which are recombined.
func decodeModifiedUTF8(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))

	var units []uint16
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}

	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u < 0xDC00 && i+1 < len(units) {
			if lo := units[i+1]; lo >= 0xDC00 && lo < 0xE000 {
				sb.WriteRune(rune(u-0xD800)<<10 | rune(lo-0xDC00) + 0x10000)
				i++
				continue
			}
		}
		sb.WriteRune(rune(u))
	}
	return sb.String()
}
