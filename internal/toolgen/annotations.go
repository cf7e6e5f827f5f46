package toolgen

import (
	"net/http"
	"strings"
)

// Annotations are the behavior hints advertised with a tool. They depend
// only on the HTTP verb.
type Annotations struct {
	ReadOnly    bool
	Destructive bool
	Idempotent  bool
}

// Annotate derives the behavior hints for an HTTP verb.
func Annotate(method string) Annotations {
	m := strings.ToUpper(method)
	read := m == http.MethodGet
	return Annotations{
		ReadOnly:    read,
		Destructive: isStateChanging(m),
		Idempotent:  read || m == http.MethodDelete,
	}
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
