package jvm

import (
	"bytes"
	"encoding/binary"
	"math"
)

// classBuilder assembles minimal class files for tests.
type classBuilder struct {
	pool    bytes.Buffer
	next    uint16
	utf8s   map[string]uint16
	classes map[string]uint16
}

type testMember struct {
	access     uint16
	name, desc string
	constant   uint16
	exceptions []string
}

type testClass struct {
	major      uint16
	access     uint16
	this       string
	super      string
	interfaces []string
	fields     []testMember
	methods    []testMember
	source     string
}

func newClassBuilder() *classBuilder {
	return &classBuilder{next: 1, utf8s: map[string]uint16{}, classes: map[string]uint16{}}
}

func (b *classBuilder) u1(v uint8)  { b.pool.WriteByte(v) }
func (b *classBuilder) u2(v uint16) { _ = binary.Write(&b.pool, binary.BigEndian, v) }

func (b *classBuilder) slot(width uint16) uint16 {
	idx := b.next
	b.next += width
	return idx
}

func (b *classBuilder) utf8(s string) uint16 {
	if idx, ok := b.utf8s[s]; ok {
		return idx
	}
	b.u1(tagUtf8)
	b.u2(uint16(len(s)))
	b.pool.WriteString(s)
	idx := b.slot(1)
	b.utf8s[s] = idx
	return idx
}

func (b *classBuilder) class(name string) uint16 {
	if idx, ok := b.classes[name]; ok {
		return idx
	}
	n := b.utf8(name)
	b.u1(tagClass)
	b.u2(n)
	idx := b.slot(1)
	b.classes[name] = idx
	return idx
}

func (b *classBuilder) str(s string) uint16 {
	n := b.utf8(s)
	b.u1(tagString)
	b.u2(n)
	return b.slot(1)
}

func (b *classBuilder) integer(v int32) uint16 {
	b.u1(tagInteger)
	_ = binary.Write(&b.pool, binary.BigEndian, v)
	return b.slot(1)
}

func (b *classBuilder) long(v int64) uint16 {
	b.u1(tagLong)
	_ = binary.Write(&b.pool, binary.BigEndian, v)
	return b.slot(2)
}

func (b *classBuilder) double(v float64) uint16 {
	b.u1(tagDouble)
	_ = binary.Write(&b.pool, binary.BigEndian, math.Float64bits(v))
	return b.slot(2)
}

func (b *classBuilder) methodRef(owner, name, desc string) uint16 {
	c := b.class(owner)
	n, d := b.utf8(name), b.utf8(desc)
	b.u1(tagNameAndType)
	b.u2(n)
	b.u2(d)
	nt := b.slot(1)
	b.u1(tagMethodref)
	b.u2(c)
	b.u2(nt)
	return b.slot(1)
}

func (b *classBuilder) build(c testClass) []byte {
	var body bytes.Buffer
	w2 := func(v uint16) { _ = binary.Write(&body, binary.BigEndian, v) }
	w4 := func(v uint32) { _ = binary.Write(&body, binary.BigEndian, v) }

	w2(c.access)
	w2(b.class(c.this))
	if c.super == "" {
		w2(0)
	} else {
		w2(b.class(c.super))
	}
	w2(uint16(len(c.interfaces)))
	for _, i := range c.interfaces {
		w2(b.class(i))
	}

	w2(uint16(len(c.fields)))
	for _, f := range c.fields {
		w2(f.access)
		w2(b.utf8(f.name))
		w2(b.utf8(f.desc))
		if f.constant == 0 {
			w2(0)
			continue
		}
		w2(1)
		w2(b.utf8("ConstantValue"))
		w4(2)
		w2(f.constant)
	}

	w2(uint16(len(c.methods)))
	for _, m := range c.methods {
		w2(m.access)
		w2(b.utf8(m.name))
		w2(b.utf8(m.desc))

		attrs := 0
		if len(m.exceptions) > 0 {
			attrs++
		}
		concrete := m.access&(accAbstract|accNative) == 0
		if concrete {
			attrs++
		}
		w2(uint16(attrs))
		if concrete {
			// opaque Code attribute, skipped by the parser
			w2(b.utf8("Code"))
			w4(5)
			body.Write([]byte{0, 1, 0, 1, 0xB1})
		}
		if len(m.exceptions) > 0 {
			w2(b.utf8("Exceptions"))
			w4(uint32(2 + 2*len(m.exceptions)))
			w2(uint16(len(m.exceptions)))
			for _, e := range m.exceptions {
				w2(b.class(e))
			}
		}
	}

	if c.source == "" {
		w2(0)
	} else {
		w2(1)
		w2(b.utf8("SourceFile"))
		w4(2)
		w2(b.utf8(c.source))
	}

	major := c.major
	if major == 0 {
		major = 52
	}

	var out bytes.Buffer
	_ = binary.Write(&out, binary.BigEndian, uint32(classMagic))
	_ = binary.Write(&out, binary.BigEndian, uint16(0))
	_ = binary.Write(&out, binary.BigEndian, major)
	_ = binary.Write(&out, binary.BigEndian, b.next)
	out.Write(b.pool.Bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

// simpleClass builds a public class with one public method.
func simpleClass(this string) []byte {
	b := newClassBuilder()
	return b.build(testClass{
		access: accPublic | 0x0020, // ACC_SUPER
		this:   this,
		super:  "java/lang/Object",
		methods: []testMember{
			{access: accPublic, name: "<init>", desc: "()V"},
			{access: accPublic, name: "run", desc: "()V"},
		},
	})
}
