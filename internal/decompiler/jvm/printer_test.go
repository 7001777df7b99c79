package jvm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func barClass(t *testing.T) *ClassFile {
	t.Helper()

	b := newClassBuilder()
	ten := b.integer(10)
	greeting := b.str("hi\n")
	five := b.long(5)
	raw := b.build(testClass{
		access:     accPublic | 0x0020,
		this:       "com/foo/Bar",
		super:      "com/foo/Base",
		interfaces: []string{"java/io/Serializable", "java/lang/Comparable"},
		fields: []testMember{
			{access: accPublic | accStatic | accFinal, name: "MAX", desc: "I", constant: ten},
			{access: accPrivate, name: "name", desc: "Ljava/lang/String;"},
			{access: accPublic | accStatic | accFinal, name: "GREETING", desc: "Ljava/lang/String;", constant: greeting},
			{access: accProtected, name: "ids", desc: "[J"},
			{access: accPublic | accStatic | accFinal, name: "BIG", desc: "J", constant: five},
			{access: accFinal | accSynthetic, name: "this$0", desc: "Lcom/foo/Outer;"},
		},
		methods: []testMember{
			{access: accPublic, name: "<init>", desc: "()V"},
			{access: accPublic, name: "getName", desc: "()Ljava/lang/String;"},
			{access: accPublic | accStatic | accVarargs, name: "format", desc: "(Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/String;"},
			{access: accPublic, name: "load", desc: "(Ljava/io/File;)[B", exceptions: []string{"java/io/IOException"}},
			{access: accPublic | accNative, name: "hash", desc: "()I"},
			{access: accPublic | accBridge | accSynthetic, name: "compareTo", desc: "(Ljava/lang/Object;)I"},
			{access: accStatic, name: "<clinit>", desc: "()V"},
		},
		source: "Bar.java",
	})

	cf, err := ParseClassFile(raw)
	require.NoError(t, err)
	return cf
}

func TestPrintClass(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	out, err := Print(context.Background(), barClass(t), DefaultFormat())
	require.NoError(err)
	require.Equal(`// Source file: Bar.java
// Class file version: 52.0 (Java 8)

package com.foo;

public class Bar extends com.foo.Base implements java.io.Serializable, Comparable {
    public static final int MAX = 10;
    private String name;
    public static final String GREETING = "hi\n";
    protected long[] ids;
    public static final long BIG = 5L;

    public Bar() { /* compiled code */ }
    public String getName() { /* compiled code */ }
    public static String format(String arg0, Object... arg1) { /* compiled code */ }
    public byte[] load(java.io.File arg0) throws java.io.IOException { /* compiled code */ }
    public native int hash();
    static { /* compiled code */ }
}
`, out)
}

func TestPrintIsDeterministic(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cf := barClass(t)
	first, err := Print(context.Background(), cf, DefaultFormat())
	require.NoError(err)
	for i := 0; i < 5; i++ {
		again, err := Print(context.Background(), cf, DefaultFormat())
		require.NoError(err)
		require.Equal(first, again)
	}
}

func TestPrintInterface(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	b := newClassBuilder()
	four := b.integer(4)
	raw := b.build(testClass{
		access:     accPublic | accInterface | accAbstract,
		this:       "com/foo/Shape",
		super:      "java/lang/Object",
		interfaces: []string{"java/lang/Cloneable"},
		fields: []testMember{
			{access: accPublic | accStatic | accFinal, name: "SIDES", desc: "I", constant: four},
		},
		methods: []testMember{
			{access: accPublic | accAbstract, name: "area", desc: "()D"},
			{access: accPublic, name: "describe", desc: "()Ljava/lang/String;"},
			{access: accPublic | accStatic, name: "unit", desc: "()Lcom/foo/Shape;"},
		},
	})
	cf, err := ParseClassFile(raw)
	require.NoError(err)

	out, err := Print(context.Background(), cf, Format{Indent: "\t"})
	require.NoError(err)
	require.Equal("package com.foo;\n\n"+
		"public interface Shape extends Cloneable {\n"+
		"\tint SIDES = 4;\n"+
		"\n"+
		"\tdouble area();\n"+
		"\tdefault String describe() { /* compiled code */ }\n"+
		"\tstatic com.foo.Shape unit() { /* compiled code */ }\n"+
		"}\n", out)
}

func TestPrintEnum(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	b := newClassBuilder()
	raw := b.build(testClass{
		access: accPublic | accFinal | 0x0020 | accEnum,
		this:   "com/foo/Color",
		super:  "java/lang/Enum",
		fields: []testMember{
			{access: accPublic | accStatic | accFinal | accEnum, name: "RED", desc: "Lcom/foo/Color;"},
			{access: accPublic | accStatic | accFinal | accEnum, name: "GREEN", desc: "Lcom/foo/Color;"},
			{access: accPrivate | accStatic | accFinal | accSynthetic, name: "$VALUES", desc: "[Lcom/foo/Color;"},
		},
		methods: []testMember{
			{access: accPrivate, name: "<init>", desc: "(Ljava/lang/String;I)V"},
		},
	})
	cf, err := ParseClassFile(raw)
	require.NoError(err)

	f := DefaultFormat()
	f.Header = false
	out, err := Print(context.Background(), cf, f)
	require.NoError(err)
	require.Equal(`package com.foo;

public enum Color {
    RED,
    GREEN;

    private Color(String arg0, int arg1) { /* compiled code */ }
}
`, out)
}

func TestPrintNestedAndDefaultPackage(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	f := Format{Indent: "  "}

	cf, err := ParseClassFile(simpleClass("com/foo/Outer$Inner"))
	require.NoError(err)
	out, err := Print(context.Background(), cf, f)
	require.NoError(err)
	require.Contains(out, "public class Inner {\n")
	require.Contains(out, "  public Inner() { /* compiled code */ }\n")

	cf, err = ParseClassFile(simpleClass("Main"))
	require.NoError(err)
	out, err = Print(context.Background(), cf, f)
	require.NoError(err)
	require.NotContains(out, "package")
	require.Contains(out, "public class Main {\n")
}

func TestPrintSortMembers(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	b := newClassBuilder()
	raw := b.build(testClass{
		access: accPublic,
		this:   "a/Sorted",
		super:  "java/lang/Object",
		fields: []testMember{
			{access: accPrivate, name: "zeta", desc: "I"},
			{access: accPrivate, name: "alpha", desc: "I"},
		},
		methods: []testMember{
			{access: accPublic | accAbstract, name: "run", desc: "()V"},
			{access: accPublic | accAbstract, name: "close", desc: "()V"},
		},
	})
	cf, err := ParseClassFile(raw)
	require.NoError(err)

	out, err := Print(context.Background(), cf, Format{Indent: " ", SortMembers: true})
	require.NoError(err)
	require.Equal("package a;\n\npublic class Sorted {\n"+
		" private int alpha;\n"+
		" private int zeta;\n"+
		"\n"+
		" public abstract void close();\n"+
		" public abstract void run();\n"+
		"}\n", out)

	// sorting does not reorder the parsed class
	require.Equal("zeta", cf.Fields[0].Name)
}

func TestPrintLiterals(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	cf := &ClassFile{pool: []constant{{}, {tag: tagUtf8, str: "say \"hi\"\t\u0001"}}}
	p := &printer{cf: cf}

	tests := []struct {
		desc string
		c    constant
		want string
	}{
		{"Z", constant{tag: tagInteger, i: 1}, "true"},
		{"Z", constant{tag: tagInteger}, "false"},
		{"C", constant{tag: tagInteger, i: 'x'}, "'x'"},
		{"C", constant{tag: tagInteger, i: '\''}, `'\''`},
		{"I", constant{tag: tagInteger, i: -7}, "-7"},
		{"J", constant{tag: tagLong, i: 1 << 40}, "1099511627776L"},
		{"F", constant{tag: tagFloat, f: 1.5}, "1.5f"},
		{"F", constant{tag: tagFloat, f: 2}, "2.0f"},
		{"D", constant{tag: tagDouble, f: 0.1}, "0.1"},
		{"Ljava/lang/String;", constant{tag: tagString, a: 1}, `"say \"hi\"\t\u0001"`},
	}
	for _, tc := range tests {
		got, err := p.literal(tc.desc, &tc.c)
		require.NoError(err, tc.desc)
		require.Equal(tc.want, got, tc.desc)
	}

	_, err := p.literal("I", &constant{tag: tagLong})
	require.Error(err)
}

func TestPrintCancelled(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Print(ctx, barClass(t), DefaultFormat())
	require.ErrorIs(err, context.Canceled)
}

func TestPrintPackageInfo(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	b := newClassBuilder()
	raw := b.build(testClass{
		access: accInterface | accAbstract | accSynthetic,
		this:   "com/foo/package-info",
		super:  "java/lang/Object",
	})
	cf, err := ParseClassFile(raw)
	require.NoError(err)

	out, err := Print(context.Background(), cf, Format{})
	require.NoError(err)
	require.Equal("package com.foo;\n\n", out)
}
