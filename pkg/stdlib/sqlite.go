package stdlib

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// sqliteModule replaces spec.md's libsqlite3 collaborator with the
// cgo-free modernc.org/sqlite driver, so a static Blade binary never
// needs a C toolchain at build time. A connection is handed back to
// Blade code as an opaque object.Pointer (spec §3: "native pointer...
// opaque handle"); its Release hook runs the driver's Close during GC
// sweep even if the script never calls close() itself.
func sqliteModule() *module.Registration {
	return &module.Registration{
		Name: "sqlite",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"open":  sqliteOpen,
			"exec":  sqliteExec,
			"query": sqliteQuery,
			"close": sqliteClose,
		},
	}
}

func sqliteOpen(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	path, err := argString(ctx, args, 0, "open")
	if err != nil {
		return value.NilValue, err
	}
	db, operr := sql.Open("sqlite", path)
	if operr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to open database: %s", operr.Error())
	}
	if perr := db.Ping(); perr != nil {
		db.Close()
		return value.NilValue, ctx.Raise("ValueError", "failed to open database: %s", perr.Error())
	}
	ptr := &object.Pointer{Name: "sqlite.DB", Target: db, Release: db.Close}
	ctx.Track(ptr)
	return value.ObjectValue(ptr), nil
}

func sqliteDB(ctx object.NativeContext, args []value.Value, fn string) (*sql.DB, error) {
	if len(args) < 1 {
		return nil, ctx.Raise("ArgumentError", "%s() expects a database handle", fn)
	}
	ptr, ok := args[0].Obj.(*object.Pointer)
	if !ok || ptr.Name != "sqlite.DB" {
		return nil, ctx.Raise("TypeError", "%s() argument 1 must be a sqlite handle", fn)
	}
	db, ok := ptr.Target.(*sql.DB)
	if !ok {
		return nil, ctx.Raise("ValueError", "sqlite handle already closed")
	}
	return db, nil
}

func sqlArgs(args []value.Value) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch a.T {
		case value.Number:
			out[i] = a.N
		case value.Bool:
			out[i] = a.B
		default:
			out[i] = value.ToString(a)
		}
	}
	return out
}

func sqliteExec(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	db, err := sqliteDB(ctx, args, "exec")
	if err != nil {
		return value.NilValue, err
	}
	query, err := argString(ctx, args, 1, "exec")
	if err != nil {
		return value.NilValue, err
	}
	res, eerr := db.Exec(query, sqlArgs(args[2:])...)
	if eerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", eerr.Error())
	}
	affected, _ := res.RowsAffected()
	return value.NumberValue(float64(affected)), nil
}

func sqliteQuery(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	db, err := sqliteDB(ctx, args, "query")
	if err != nil {
		return value.NilValue, err
	}
	query, err := argString(ctx, args, 1, "query")
	if err != nil {
		return value.NilValue, err
	}
	rows, qerr := db.Query(query, sqlArgs(args[2:])...)
	if qerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", qerr.Error())
	}
	defer rows.Close()

	cols, cerr := rows.Columns()
	if cerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", cerr.Error())
	}

	var results []value.Value
	for rows.Next() {
		scanTargets := make([]interface{}, len(cols))
		scanValues := make([]interface{}, len(cols))
		for i := range scanTargets {
			scanTargets[i] = &scanValues[i]
		}
		if serr := rows.Scan(scanTargets...); serr != nil {
			return value.NilValue, ctx.Raise("ValueError", "%s", serr.Error())
		}
		row := newDict(ctx)
		for i, col := range cols {
			row.Put(newString(ctx, col), sqlValueToBlade(ctx, scanValues[i]))
		}
		results = append(results, value.ObjectValue(row))
	}
	if rerr := rows.Err(); rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", rerr.Error())
	}
	return newList(ctx, results), nil
}

func sqlValueToBlade(ctx object.NativeContext, v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.NilValue
	case int64:
		return value.NumberValue(float64(t))
	case float64:
		return value.NumberValue(t)
	case bool:
		return value.BoolValue(t)
	case []byte:
		return newString(ctx, string(t))
	case string:
		return newString(ctx, t)
	default:
		return newString(ctx, value.ToString(value.NilValue))
	}
}

func sqliteClose(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.NilValue, ctx.Raise("ArgumentError", "close() expects a database handle")
	}
	ptr, ok := args[0].Obj.(*object.Pointer)
	if !ok || ptr.Name != "sqlite.DB" {
		return value.NilValue, ctx.Raise("TypeError", "close() argument 1 must be a sqlite handle")
	}
	if db, ok := ptr.Target.(*sql.DB); ok {
		if cerr := db.Close(); cerr != nil {
			return value.NilValue, ctx.Raise("ValueError", "%s", cerr.Error())
		}
		ptr.Target = nil
	}
	return value.NilValue, nil
}
