package stdlib

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blade-lang/blade/pkg/module"
	"github.com/blade-lang/blade/pkg/object"
	"github.com/blade-lang/blade/pkg/value"
)

// netModule replaces spec.md's libcurl collaborator: no ecosystem
// HTTP-client dependency appears anywhere in the retrieved corpus (see
// SPEC_FULL.md's DOMAIN STACK table), so this stays on net/http directly.
func netModule() *module.Registration {
	return &module.Registration{
		Name: "net",
		Functions: map[string]func(object.NativeContext, []value.Value) (value.Value, error){
			"get":  httpGet,
			"post": httpPost,
		},
	}
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func httpGet(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	url, err := argString(ctx, args, 0, "get")
	if err != nil {
		return value.NilValue, err
	}
	resp, gerr := httpClient.Get(url)
	if gerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "HTTP GET failed: %s", gerr.Error())
	}
	defer resp.Body.Close()
	body, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to read response body: %s", rerr.Error())
	}
	return newString(ctx, string(body)), nil
}

func httpPost(ctx object.NativeContext, args []value.Value) (value.Value, error) {
	url, err := argString(ctx, args, 0, "post")
	if err != nil {
		return value.NilValue, err
	}
	body := optString(args, 1, "")
	resp, perr := httpClient.Post(url, "text/plain", strings.NewReader(body))
	if perr != nil {
		return value.NilValue, ctx.Raise("ValueError", "HTTP POST failed: %s", perr.Error())
	}
	defer resp.Body.Close()
	respBody, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return value.NilValue, ctx.Raise("ValueError", "failed to read response body: %s", rerr.Error())
	}
	return newString(ctx, string(respBody)), nil
}
