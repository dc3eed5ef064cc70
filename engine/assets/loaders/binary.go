package loaders

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return &metadata.Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		Type:     metadata.ResourceTypeBinary,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

func (bl *BinaryLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}
