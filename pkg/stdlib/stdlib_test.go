package stdlib

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// fakeCtx is a minimal object.NativeContext good enough to call a
// pkg/stdlib native directly, without standing up a whole *vm.VM — the
// same spirit as pkg/compiler's stubInterner and pkg/gc's fakeRoots.
type fakeCtx struct{}

func (fakeCtx) Intern(s string) *object.String { return &object.String{Chars: s} }
func (fakeCtx) Track(o value.Object)            {}
func (fakeCtx) Call(callee value.Value, args []value.Value) (value.Value, error) {
	return value.NilValue, nil
}
func (fakeCtx) Raise(kind, format string, a ...interface{}) error {
	return fmt.Errorf(kind+": "+format, a...)
}
func (fakeCtx) Pin(v value.Value) {}
func (fakeCtx) Unpin(n int)       {}

func str(s string) value.Value { return value.ObjectValue(&object.String{Chars: s}) }

func asString(t *testing.T, v value.Value) string {
	t.Helper()
	s, ok := v.Obj.(*object.String)
	if !ok {
		t.Fatalf("expected a string value, got %#v", v)
	}
	return s.Chars
}

func TestBase64RoundTrip(t *testing.T) {
	ctx := fakeCtx{}
	encoded, err := base64Encode(ctx, []value.Value{str("hello world")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := base64Decode(ctx, []value.Value{encoded})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bs, ok := decoded.Obj.(*object.Bytes)
	if !ok {
		t.Fatalf("expected bytes, got %#v", decoded)
	}
	if string(bs.Data) != "hello world" {
		t.Fatalf("round trip mismatch: got %q", bs.Data)
	}
}

func TestHashSHA256Length(t *testing.T) {
	out, err := hashSHA256(fakeCtx{}, []value.Value{str("test")})
	if err != nil {
		t.Fatalf("sha256: %v", err)
	}
	if got := len(asString(t, out)); got != 64 {
		t.Fatalf("sha256 hex length = %d, want 64", got)
	}
}

func TestAESRoundTrip(t *testing.T) {
	ctx := fakeCtx{}
	key := "12345678901234567890123456789012"
	encrypted, err := aesEncrypt(ctx, []value.Value{str("secret message"), str(key)})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	decrypted, err := aesDecrypt(ctx, []value.Value{encrypted, str(key)})
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got := asString(t, decrypted); got != "secret message" {
		t.Fatalf("decrypt mismatch: got %q", got)
	}
}

func TestGzipRoundTrip(t *testing.T) {
	ctx := fakeCtx{}
	compressed, err := gzipCompress(ctx, []value.Value{str("repeat repeat repeat repeat")})
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	decompressed, err := gzipDecompress(ctx, []value.Value{compressed})
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	bs := decompressed.Obj.(*object.Bytes)
	if string(bs.Data) != "repeat repeat repeat repeat" {
		t.Fatalf("round trip mismatch: got %q", bs.Data)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := fakeCtx{}
	generated, err := jsonGenerate(ctx, []value.Value{value.NumberValue(42)})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := asString(t, generated); got != "42" {
		t.Fatalf("generate = %q, want 42", got)
	}

	parsed, err := jsonParse(ctx, []value.Value{str(`{"a": 1, "b": [true, null]}`)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, ok := parsed.Obj.(*object.Dict)
	if !ok {
		t.Fatalf("expected a dict, got %#v", parsed)
	}
	a, ok := d.Get(str("a"))
	if !ok || a.N != 1 {
		t.Fatalf("expected a=1, got %#v (ok=%v)", a, ok)
	}
}

func TestRegexMatchAndReplace(t *testing.T) {
	ctx := fakeCtx{}
	matched, err := regexMatch(ctx, []value.Value{str(`\d+`), str("room 42")})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !matched.B {
		t.Fatalf("expected a match")
	}
	replaced, err := regexReplace(ctx, []value.Value{str(`\d+`), str("room 42"), str("N")})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := asString(t, replaced); got != "room N" {
		t.Fatalf("replace = %q, want %q", got, "room N")
	}
}

func TestDateFormatAndParseRoundTrip(t *testing.T) {
	ctx := fakeCtx{}
	formatted, err := dateFormat(ctx, []value.Value{value.NumberValue(0), str("date")})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if got := asString(t, formatted); got != "1970-01-01" {
		t.Fatalf("format = %q, want 1970-01-01", got)
	}
	parsed, err := dateParse(ctx, []value.Value{str("1970-01-01"), str("date")})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.N != 0 {
		t.Fatalf("parse = %v, want 0", parsed.N)
	}
}

func TestConvertToNumber(t *testing.T) {
	ctx := fakeCtx{}
	n, err := convertToNumber(ctx, []value.Value{str("3.5")})
	if err != nil {
		t.Fatalf("to_number: %v", err)
	}
	if n.N != 3.5 {
		t.Fatalf("to_number = %v, want 3.5", n.N)
	}
	if _, err := convertToNumber(ctx, []value.Value{str("not a number")}); err == nil {
		t.Fatalf("expected an error converting a non-numeric string")
	}
}

func TestStringsGraphemeLength(t *testing.T) {
	n, err := graphemeLength(fakeCtx{}, []value.Value{str("abc")})
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n.N != 3 {
		t.Fatalf("length = %v, want 3", n.N)
	}
}

func TestIOOpenWriteMode(t *testing.T) {
	ctx := fakeCtx{}
	path := filepath.Join(t.TempDir(), "blade-io-test.txt")

	v, err := ioOpen(ctx, []value.Value{str(path), str("w")})
	if err != nil {
		t.Fatalf("open for write: %v", err)
	}
	f, ok := v.Obj.(*object.File)
	if !ok {
		t.Fatalf("expected *object.File, got %#v", v)
	}
	if f.Name != path || f.Mode != "w" || f.Closed {
		t.Fatalf("unexpected file state: %+v", f)
	}
	if _, werr := f.Handle.WriteString("hello io"); werr != nil {
		t.Fatalf("write: %v", werr)
	}
	if cerr := f.Close(); cerr != nil {
		t.Fatalf("close: %v", cerr)
	}
}

func TestIOOpenRejectsUnknownMode(t *testing.T) {
	ctx := fakeCtx{}
	if _, err := ioOpen(ctx, []value.Value{str(filepath.Join(t.TempDir(), "x")), str("bogus")}); err == nil {
		t.Fatalf("expected an error for an unrecognized mode")
	}
}

func TestIOStdin(t *testing.T) {
	v, err := ioStdin(fakeCtx{}, nil)
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	f, ok := v.Obj.(*object.File)
	if !ok || f.Name != "<stdin>" {
		t.Fatalf("expected the stdin File, got %#v", v)
	}
}

func TestMathHelpers(t *testing.T) {
	ctx := fakeCtx{}
	root, err := unary(func(f float64) float64 { return f * f })(ctx, []value.Value{value.NumberValue(4)})
	if err != nil {
		t.Fatalf("unary: %v", err)
	}
	if root.N != 16 {
		t.Fatalf("unary helper = %v, want 16", root.N)
	}
}
