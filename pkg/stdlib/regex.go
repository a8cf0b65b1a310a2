package stdlib

import (
	"github.com/dlclark/regexp2"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// regexModule stands in for the C PCRE collaborator spec.md names as
// out-of-scope: regexp2 gives the same backtracking/PCRE-flavored
// semantics (lookaround, backreferences) the stdlib regexp package's RE2
// engine cannot, matching what a PCRE-backed `regex` module's users would
// actually rely on.
func regexModule() *module.Registration {
	return &module.Registration{
		Name: "regex",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"match":    regexMatch,
			"find_all": regexFindAll,
			"replace":  regexReplace,
		},
	}
}

func compilePattern(ctx object.NativeContext, pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, ctx.Raise("ValueError", "invalid regex pattern: %s", err.Error())
	}
	return re, nil
}

func regexMatch(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	pattern, err := argString(ctx, args, 0, "match")
	if err != nil {
		return value.NilValue, err
	}
	text, err := argString(ctx, args, 1, "match")
	if err != nil {
		return value.NilValue, err
	}
	re, err := compilePattern(ctx, pattern)
	if err != nil {
		return value.NilValue, err
	}
	m, merr := re.MatchString(text)
	if merr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", merr.Error())
	}
	return value.BoolValue(m), nil
}

func regexFindAll(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	pattern, err := argString(ctx, args, 0, "find_all")
	if err != nil {
		return value.NilValue, err
	}
	text, err := argString(ctx, args, 1, "find_all")
	if err != nil {
		return value.NilValue, err
	}
	re, err := compilePattern(ctx, pattern)
	if err != nil {
		return value.NilValue, err
	}

	var elems []value.Value
	m, merr := re.FindStringMatch(text)
	for merr == nil && m != nil {
		elems = append(elems, newString(ctx, m.String()))
		m, merr = re.FindNextMatch(m)
	}
	if merr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", merr.Error())
	}
	return newList(ctx, elems), nil
}

func regexReplace(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	pattern, err := argString(ctx, args, 0, "replace")
	if err != nil {
		return value.NilValue, err
	}
	text, err := argString(ctx, args, 1, "replace")
	if err != nil {
		return value.NilValue, err
	}
	replacement, err := argString(ctx, args, 2, "replace")
	if err != nil {
		return value.NilValue, err
	}
	re, err := compilePattern(ctx, pattern)
	if err != nil {
		return value.NilValue, err
	}
	out, rerr := re.Replace(text, replacement, -1, -1)
	if rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "%s", rerr.Error())
	}
	return newString(ctx, out), nil
}
