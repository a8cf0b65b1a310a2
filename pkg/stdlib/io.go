package stdlib

import (
	"os"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// ioModule covers the long-lived file-handle half of file I/O that
// osModule's one-shot read_file/write_file pair doesn't: open()/close()
// plus line- and chunk-oriented reads and writes against an object.File
// (spec §3's File heap type), so a script can stream a file instead of
// slurping it whole.
func ioModule() *module.Registration {
	return &module.Registration{
		Name: "io",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"open":  ioOpen,
			"stdin": ioStdin,
		},
	}
}

var fileModeFlags = map[string]int{
	"r":  os.O_RDONLY,
	"w":  os.O_WRONLY | os.O_CREATE | os.O_TRUNC,
	"a":  os.O_WRONLY | os.O_CREATE | os.O_APPEND,
	"r+": os.O_RDWR,
	"w+": os.O_RDWR | os.O_CREATE | os.O_TRUNC,
}

func ioOpen(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	path, err := argString(ctx, args, 0, "open")
	if err != nil {
		return value.NilValue, err
	}
	mode := optString(args, 1, "r")
	flag, ok := fileModeFlags[mode]
	if !ok {
		return value.NilValue, ctx.Raise("ArgumentError", "open() mode must be one of r, w, a, r+, w+, got %s", mode)
	}
	f, oerr := os.OpenFile(path, flag, 0644)
	if oerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to open %s: %s", path, oerr.Error())
	}
	return newFile(ctx, f, path, mode), nil
}

func ioStdin(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	return newFile(ctx, os.Stdin, "<stdin>", "r"), nil
}

func newFile(ctx object.NativeContext, f *os.File, name, mode string) value.Value {
	file := &object.File{Handle: f, Name: name, Mode: mode}
	ctx.Track(file)
	return value.ObjectValue(file)
}

