package assets

import "github.com/spaghettifunk/fromscratch/engine/renderer/metadata"

type Loader interface {
	Load(path string) (*metadata.Resource, error)
	Unload(*metadata.Resource) error
}
