package stdlib

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// zlibModule covers the teacher's zipCompress/zipDecompress/gzipCompress/
// gzipDecompress primitives. DESIGN.md records why this stays on the
// standard library rather than klauspost/compress: that library's zip
// writer does not give Blade's single-entry zipCompress/zipDecompress
// contract anything stdlib's archive/zip doesn't already cover.
func zlibModule() *module.Registration {
	return &module.Registration{
		Name: "zlib",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"zip":    zipCompress,
			"unzip":  zipDecompress,
			"gzip":   gzipCompress,
			"gunzip": gzipDecompress,
		},
	}
}

func zipCompress(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	data, err := argBytes(ctx, args, 0, "zip")
	if err != nil {
		return value.NilValue, err
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, zerr := w.Create("data")
	if zerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to create zip entry: %s", zerr.Error())
	}
	if _, werr := f.Write(data); werr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to write zip: %s", werr.Error())
	}
	if cerr := w.Close(); cerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to close zip: %s", cerr.Error())
	}
	return newBytes(ctx, buf.Bytes()), nil
}

func zipDecompress(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	data, err := argBytes(ctx, args, 0, "unzip")
	if err != nil {
		return value.NilValue, err
	}
	r, zerr := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if zerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to open zip: %s", zerr.Error())
	}
	if len(r.File) == 0 {
		return value.NilValue, ctx.Raise("ValueError", "zip archive is empty")
	}
	f, oerr := r.File[0].Open()
	if oerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to open zip entry: %s", oerr.Error())
	}
	defer f.Close()
	content, rerr := io.ReadAll(f)
	if rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to read zip entry: %s", rerr.Error())
	}
	return newBytes(ctx, content), nil
}

func gzipCompress(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	data, err := argBytes(ctx, args, 0, "gzip")
	if err != nil {
		return value.NilValue, err
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, werr := w.Write(data); werr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to write gzip: %s", werr.Error())
	}
	if cerr := w.Close(); cerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to close gzip: %s", cerr.Error())
	}
	return newBytes(ctx, buf.Bytes()), nil
}

func gzipDecompress(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	data, err := argBytes(ctx, args, 0, "gunzip")
	if err != nil {
		return value.NilValue, err
	}
	r, rerr := gzip.NewReader(bytes.NewReader(data))
	if rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to open gzip: %s", rerr.Error())
	}
	defer r.Close()
	content, cerr := io.ReadAll(r)
	if cerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to read gzip: %s", cerr.Error())
	}
	return newBytes(ctx, content), nil
}
