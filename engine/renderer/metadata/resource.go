package metadata

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	ResourceTypeNone ResourceType = iota
	/** @brief Raw bytes, no validation. */
	ResourceTypeBinary
	/** @brief Compiled SPIR-V shader module. */
	ResourceTypeShader
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeShader:
		return "shader"
	default:
		return "none"
	}
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	Type     ResourceType
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	Data     []byte
}
