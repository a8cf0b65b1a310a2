package stdlib

import (
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// dateModule covers the teacher's dateNow/dateFormat/dateParse/timeYear../
// timeSecond primitives. Formatting goes through go-strftime so a
// "format" string uses C strftime %-directives (spec.md's "date/time"
// collaborator is itself modeled on C's strftime/strptime), while the
// named shorthands ("iso8601", "date", "time", "datetime") stay as
// direct Go time-layout aliases for convenience.
func dateModule() *module.Registration {
	return &module.Registration{
		Name: "date",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"now":    dateNow,
			"format": dateFormat,
			"parse":  dateParse,
			"year":   timePart(func(t time.Time) int64 { return int64(t.Year()) }),
			"month":  timePart(func(t time.Time) int64 { return int64(t.Month()) }),
			"day":    timePart(func(t time.Time) int64 { return int64(t.Day()) }),
			"hour":   timePart(func(t time.Time) int64 { return int64(t.Hour()) }),
			"minute": timePart(func(t time.Time) int64 { return int64(t.Minute()) }),
			"second": timePart(func(t time.Time) int64 { return int64(t.Second()) }),
		},
	}
}

func dateNow(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	return value.NumberValue(float64(time.Now().Unix())), nil
}

var namedLayouts = map[string]string{
	"iso8601":  time.RFC3339,
	"ISO8601":  time.RFC3339,
	"rfc3339":  time.RFC3339,
	"RFC3339":  time.RFC3339,
	"date":     "2006-01-02",
	"time":     "15:04:05",
	"datetime": "2006-01-02 15:04:05",
}

func dateFormat(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	ts, err := argInt(ctx, args, 0, "format")
	if err != nil {
		return value.NilValue, err
	}
	format, err := argString(ctx, args, 1, "format")
	if err != nil {
		return value.NilValue, err
	}
	t := time.Unix(ts, 0).UTC()
	if layout, ok := namedLayouts[format]; ok {
		return newString(ctx, t.Format(layout)), nil
	}
	return newString(ctx, strftime.Format(format, t)), nil
}

func dateParse(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	s, err := argString(ctx, args, 0, "parse")
	if err != nil {
		return value.NilValue, err
	}
	format := optString(args, 1, "iso8601")
	layout, ok := namedLayouts[format]
	if !ok {
		layout = format
	}
	t, perr := time.Parse(layout, s)
	if perr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to parse date: %s", perr.Error())
	}
	return value.NumberValue(float64(t.Unix())), nil
}

func timePart(extract func(time.Time) int64) func(object.NativeContext, []value.Value) (value.Value, error) {
	return func(ctx object.NativeContext, args []value.Value) (value.Value, error) {
		ts, err := argInt(ctx, args, 0, "date part")
		if err != nil {
			return value.NilValue, err
		}
		return value.NumberValue(float64(extract(time.Unix(ts, 0).UTC()))), nil
	}
}
