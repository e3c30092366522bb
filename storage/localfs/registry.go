package localfs

import (
	"flag"
	"os"
	"path/filepath"

	"xdao.co/void/storage"
	"xdao.co/void/storage/registry"
)

var flagRoot string

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "void-blobs")
	}
	return filepath.Join(home, ".void", "blobs")
}

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "filesystem blob store (content-addressed, immutable)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagRoot, "localfs-root", defaultRoot(), "Root directory (for --backend=localfs)")
		},
		Open: func() (storage.BlobStore, func() error, error) {
			store, err := New(flagRoot)
			if err != nil {
				return nil, nil, err
			}
			return store, nil, nil
		},
	})
}
