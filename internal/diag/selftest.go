package diag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"github.com/mattn/go-sqlite3"
)

const (
	testFileName = "test.json"
	dirPerm      = 0o755
	filePerm     = 0o644
)

// Check is one environment probe. Run returns a short success detail.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// DefaultChecks probes the storage driver, the data directory and local
// TCP binding.
func DefaultChecks(dataDir string) []Check {
	return []Check{
		{Name: "storage", Run: CheckStorage},
		{Name: "filesystem", Run: func(context.Context) (string, error) { return CheckFilesystem(dataDir) }},
		{Name: "network", Run: CheckNetwork},
	}
}

// SelfTest runs checks in order and stops at the first failure, which is
// returned as ErrSelfTestFailed.
func SelfTest(ctx context.Context, w io.Writer, checks []Check) error {
	fmt.Fprintln(w, "Testing basic functionality...")

	for _, c := range checks {
		detail, err := c.Run(ctx)
		if err != nil {
			fmt.Fprintf(w, "❌ %s: %v\n", c.Name, err)
			return errors.New().Wrap(errors.ErrSelfTestFailed, err).
				WithMessage(fmt.Sprintf("%s check failed", c.Name))
		}
		fmt.Fprintf(w, "✅ %s\n", detail)
	}

	fmt.Fprintln(w, "All basic functionality tests passed!")
	return nil
}

// CheckStorage opens an in-memory SQLite database and pings it.
func CheckStorage(ctx context.Context) (string, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return "", err
	}

	version, _, _ := sqlite3.Version()
	return "SQLite driver available (sqlite " + version + ")", nil
}

// CheckFilesystem creates dir, then writes and removes a small JSON file in it.
func CheckFilesystem(dir string) (string, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", err
	}

	data, err := json.Marshal(map[string]string{"test": "data"})
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, testFileName)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return "File system operations successful", nil
}

// CheckNetwork binds an ephemeral port on localhost.
func CheckNetwork(ctx context.Context) (string, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "localhost:0")
	if err != nil {
		return "", err
	}
	defer ln.Close()

	return fmt.Sprintf("Network binding successful (test port: %d)", ln.Addr().(*net.TCPAddr).Port), nil
}
