// Package stdlib implements Blade's native-module providers (spec §6): the
// host-implemented functionality the language core treats as external
// collaborators reached only through the module-loader ABI — HTTP, crypto
// hashes, compression, file I/O, JSON, regex, random numbers, date/time,
// SQLite, and string/rune helpers.
//
// Every provider here is grounded on the same functional surface the
// teacher VM used to implement directly as opcodes; Blade instead exposes
// it as a module.Registration, loaded lazily the first time a script
// imports it by name.
package stdlib

import (
	"github.com/blade-lang/blade/pkg/module"
)

// RegisterAll wires every native module provider into registry. Called
// once at VM construction, before the entry script runs. scriptArgs
// is what the `os` module's `args()` function returns (the script's own argv, spec
// §6's "a script path plus arbitrary script arguments").
func RegisterAll(registry *module.Registry, scriptArgs []string) {
	registry.RegisterNative(osModule(scriptArgs))
	registry.RegisterNative(ioModule())
	registry.RegisterNative(jsonModule())
	registry.RegisterNative(base64Module())
	registry.RegisterNative(hashModule())
	registry.RegisterNative(zlibModule())
	registry.RegisterNative(netModule())
	registry.RegisterNative(regexModule())
	registry.RegisterNative(dateModule())
	registry.RegisterNative(mathModule())
	registry.RegisterNative(convertModule())
	registry.RegisterNative(stringsModule())
	registry.RegisterNative(sqliteModule())
}
