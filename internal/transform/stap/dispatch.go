package stap

import (
	"strconv"

	"tracesig/pkg/models"
)

// apiSpec describes how a known API's positional arguments map to
// semantic names and which category the call belongs to.
type apiSpec struct {
	category string
	names    []string
}

// apiTable is built once at startup. APIs absent from the table keep the
// default category and positional argument names.
var apiTable = buildAPITable()

func buildAPITable() map[string]apiSpec {
	t := make(map[string]apiSpec, 24)

	pathArgs := []string{"path", "mode", "flags"}
	for _, api := range []string{"open", "creat", "chmod", "chdir", "stat"} {
		t[api] = apiSpec{models.CategoryFile, pathArgs}
	}

	fdArgs := []string{"fd", "buffer", "count"}
	for _, api := range []string{"write", "read", "close"} {
		t[api] = apiSpec{models.CategoryFile, fdArgs}
	}

	t["chown"] = apiSpec{models.CategoryFile, []string{"path", "owner", "group"}}
	t["rt_sigaction"] = apiSpec{models.CategoryDefault, []string{"signal", "act", "oldact"}}

	t["socket"] = apiSpec{models.CategoryNetwork, []string{"domain", "type", "protocol"}}

	addrArgs := []string{"sockfd", "addr", "addrlen", "flags"}
	for _, api := range []string{"connect", "bind", "accept", "accept4", "getsockname", "getpeername"} {
		t[api] = apiSpec{models.CategoryNetwork, addrArgs}
	}

	// optlen is not surfaced: upstream reports never carried it and
	// consumers depend on the four-argument shape.
	sockoptArgs := []string{"sockfd", "level", "optname", "optval"}
	t["getsockopt"] = apiSpec{models.CategoryNetwork, sockoptArgs}
	t["setsockopt"] = apiSpec{models.CategoryNetwork, sockoptArgs}

	return t
}

// applyDispatch renames positional arguments to their semantic names and
// assigns the call's category. Unknown APIs pass through untouched.
func applyDispatch(ev *models.SyscallEvent) {
	spec, ok := apiTable[ev.API]
	if !ok {
		return
	}
	ev.Category = spec.category
	for i, name := range spec.names {
		key := "p" + strconv.Itoa(i)
		if v, ok := ev.Arguments[key]; ok {
			ev.Arguments[name] = v
			delete(ev.Arguments, key)
		}
	}
}
