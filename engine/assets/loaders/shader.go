package loaders

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// ShaderLoader reads a compiled SPIR-V module and checks it looks like one.
type ShaderLoader struct {
	binary BinaryLoader
}

func (sl *ShaderLoader) Load(path string) (*metadata.Resource, error) {
	res, err := sl.binary.Load(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateSPIRV(res.Data); err != nil {
		return nil, fmt.Errorf("shader %s: %w", path, err)
	}
	res.Type = metadata.ResourceTypeShader
	return res, nil
}

func (sl *ShaderLoader) Unload(res *metadata.Resource) error {
	return sl.binary.Unload(res)
}

// ValidateSPIRV checks the size and the little endian magic number.
func ValidateSPIRV(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return fmt.Errorf("size %d is not a positive multiple of 4", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != SPIRVMagic {
		return fmt.Errorf("bad magic number 0x%08x", magic)
	}
	return nil
}
