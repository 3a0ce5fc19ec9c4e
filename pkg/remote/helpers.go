// pkg/remote/helpers.go

package remote

import (
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	cerr "github.com/cockroachdb/errors"
)

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shellQuotePath(p string) string {
	return execute.ShellQuote(p)
}

func openLocal(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to open %s", path)
	}
	return f, nil
}

func createLocal(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to create %s", path)
	}
	return f, nil
}
