package stdlib

import (
	"os"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// osModule covers the teacher's fileRead/fileWrite/fileExists/fileDelete
// primitives plus the process-environment and script-argv lookups a
// launcher-adjacent module like this one would also reasonably expose.
// scriptArgs is the entry script's own argv (spec §6: "a script path plus
// arbitrary script arguments"), captured as a closure so `os.args()`
// returns a freshly tracked list built through the calling Native's own
// NativeContext rather than a module Field built before any VM exists.
func osModule(scriptArgs []string) *module.Registration {
	return &module.Registration{
		Name: "os",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"read_file":   fileRead,
			"write_file":  fileWrite,
			"file_exists": fileExists,
			"remove_file": fileDelete,
			"getenv":      osGetenv,
			"exit":        osExit,
			"args":        osArgs(scriptArgs),
		},
	}
}

func osArgs(scriptArgs []string) func(object.NativeContext, []value.Value) (value.Value, error) {
	return func(ctx object.NativeContext, args []value.Value) (value.Value, error) {
		elems := make([]value.Value, len(scriptArgs))
		for i, a := range scriptArgs {
			elems[i] = newString(ctx, a)
		}
		return newList(ctx, elems), nil
	}
}

func fileRead(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	path, err := argString(ctx, args, 0, "read_file")
	if err != nil {
		return value.NilValue, err
	}
	content, rerr := os.ReadFile(path)
	if rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to read file: %s", rerr.Error())
	}
	return newString(ctx, string(content)), nil
}

func fileWrite(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	path, err := argString(ctx, args, 0, "write_file")
	if err != nil {
		return value.NilValue, err
	}
	content, err := argString(ctx, args, 1, "write_file")
	if err != nil {
		return value.NilValue, err
	}
	if werr := os.WriteFile(path, []byte(content), 0644); werr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to write file: %s", werr.Error())
	}
	return value.NilValue, nil
}

func fileExists(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	path, err := argString(ctx, args, 0, "file_exists")
	if err != nil {
		return value.NilValue, err
	}
	_, serr := os.Stat(path)
	return value.BoolValue(serr == nil), nil
}

func fileDelete(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	path, err := argString(ctx, args, 0, "remove_file")
	if err != nil {
		return value.NilValue, err
	}
	if rerr := os.Remove(path); rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to delete file: %s", rerr.Error())
	}
	return value.NilValue, nil
}

func osGetenv(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	name, err := argString(ctx, args, 0, "getenv")
	if err != nil {
		return value.NilValue, err
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		return value.NilValue, nil
	}
	return newString(ctx, v), nil
}

func osExit(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	os.Exit(int(optInt(args, 0, 0)))
	return value.NilValue, nil
}
