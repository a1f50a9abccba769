package cachekey

import (
	"strconv"
	"strings"

	"aotcache/internal/program"
)

// EncodeShapes renders dynamic input shapes as a single prefix string.
// Every dimension is followed by "," and every shape is terminated by ";",
// so a rank-0 shape still leaves a ";" mark and adjacent shapes can never
// bleed into each other. An empty slice encodes as "".
//
// The output is wire format shared with deployed caches. Do not change it.
func EncodeShapes(shapes []program.Shape) string {
	var b strings.Builder
	for _, s := range shapes {
		for _, dim := range s.Dims() {
			b.WriteString(strconv.FormatInt(dim, 10))
			b.WriteByte(',')
		}
		b.WriteByte(';')
	}
	return b.String()
}

// EncodeArgs renders the per-argument compilation configuration as a
// single prefix string. Per argument, in order:
//
//	":s" when the argument carries the same data on every replica,
//	     ":" otherwise
//	"e"  when sharding is explicitly allowed
//	":u" when the layout is unrestricted
//	",type(<dtype>)"
//	",shape(d0,d1,...,)" when a static shape is present
//
// Argument boundaries are not self-delimiting (":u" also begins with
// ":"), so the encoding is not parseable in general. It is only ever
// compared for equality, and like EncodeShapes it is wire format that
// must stay byte-stable.
func EncodeArgs(args []program.Arg) string {
	var b strings.Builder
	for _, arg := range args {
		if arg.SameDataAcrossReplicas {
			b.WriteString(":s")
		} else {
			b.WriteString(":")
		}
		if arg.Sharding == program.ShardingAllowed {
			b.WriteString("e")
		}
		if arg.UnrestrictedLayout {
			b.WriteString(":u")
		}
		b.WriteString(",type(")
		b.WriteString(string(arg.DType))
		b.WriteString(")")
		if arg.Shape != nil {
			b.WriteString(",shape(")
			for _, dim := range arg.Shape.Dims() {
				b.WriteString(strconv.FormatInt(dim, 10))
				b.WriteByte(',')
			}
			b.WriteString(")")
		}
	}
	return b.String()
}
